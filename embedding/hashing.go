package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var hashingTokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// HashingEmbedderConfig 哈希嵌入器配置。
type HashingEmbedderConfig struct {
	// Dimension 向量维度，默认 512。
	Dimension int `json:"dimension" yaml:"dimension"`
}

// HashingEmbedder is a deterministic bag-of-words embedder: each token is
// hashed (FNV-1a) into one of Dimension buckets and the counts are
// L2-normalized. It needs no external service and no mutable vocabulary, so
// the same text always maps to the same vector across processes. Quality is
// far below a learned model; it is the fallback for local development, tests
// and encoder-free deployments.
type HashingEmbedder struct {
	dimension int
	logger    *zap.Logger
}

// NewHashingEmbedder 创建哈希嵌入器。
func NewHashingEmbedder(cfg HashingEmbedderConfig, logger *zap.Logger) *HashingEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = 512
	}
	return &HashingEmbedder{
		dimension: dim,
		logger:    logger.With(zap.String("component", "hashing_embedder")),
	}
}

// Dimension returns the configured vector dimension.
func (e *HashingEmbedder) Dimension() int { return e.dimension }

// Encode implements Embedder. Empty or token-free text yields a zero vector.
func (e *HashingEmbedder) Encode(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, e.dimension)
	tokens := hashingTokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		vec[h.Sum64()%uint64(e.dimension)]++
	}

	normalize(vec)
	return vec, nil
}

// EncodeAll implements Embedder.
func (e *HashingEmbedder) EncodeAll(ctx context.Context, texts []string) ([][]float64, error) {
	vecs := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Name implements Embedder.
func (e *HashingEmbedder) Name() string { return "hashing" }

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}
