package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Embedder 文本嵌入接口。同一实例产出的向量维度必须一致。
type Embedder interface {
	// Encode 将单条文本编码为向量。
	Encode(ctx context.Context, text string) ([]float64, error)

	// EncodeAll 批量编码，返回与输入等长的向量列表。
	EncodeAll(ctx context.Context, texts []string) ([][]float64, error)

	// Name 返回实现名称，用于日志与统计。
	Name() string
}

// Provider is the narrow contract an external embedding service must satisfy.
// It mirrors the shape used by retrieval-side embedding providers.
type Provider interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
	Name() string
}

// ProviderEmbedder adapts an external Provider to the Embedder interface.
// Provider failures are returned to the caller; components consuming the
// embedder degrade to empty results rather than aborting.
type ProviderEmbedder struct {
	provider Provider
	logger   *zap.Logger
}

// NewProviderEmbedder 创建外部服务嵌入适配器。
func NewProviderEmbedder(provider Provider, logger *zap.Logger) (*ProviderEmbedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("embedding: provider must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderEmbedder{
		provider: provider,
		logger:   logger.With(zap.String("component", "provider_embedder")),
	}, nil
}

// Encode implements Embedder.
func (e *ProviderEmbedder) Encode(ctx context.Context, text string) ([]float64, error) {
	vec, err := e.provider.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Warn("embedding provider failed",
			zap.String("provider", e.provider.Name()),
			zap.Error(err))
		return nil, fmt.Errorf("encode text: %w", err)
	}
	return vec, nil
}

// EncodeAll implements Embedder.
func (e *ProviderEmbedder) EncodeAll(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding provider batch failed",
			zap.String("provider", e.provider.Name()),
			zap.Int("count", len(texts)),
			zap.Error(err))
		return nil, fmt.Errorf("encode %d texts: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("encode: provider returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Name implements Embedder.
func (e *ProviderEmbedder) Name() string {
	return "provider:" + e.provider.Name()
}
