package extract

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Method 抽取方式。
type Method string

const (
	MethodRule   Method = "rule"   // 仅规则模式
	MethodLLM    Method = "llm"    // 仅 LLM 结构化抽取
	MethodHybrid Method = "hybrid" // 规则 + LLM，键冲突时规则优先
)

// Triple 因果三元组，是抽取输出与图构建输入之间的瞬态载体。
type Triple struct {
	Cause      string  `json:"cause"`
	Effect     string  `json:"effect"`
	Confidence float64 `json:"confidence"`
}

// GenerateRequest is the narrow request shape passed to the external text
// generation collaborator.
type GenerateRequest struct {
	Prompt        string
	Temperature   float64
	MaxTokens     int
	JSONMode      bool
	JSONArrayMode bool
}

// Generator is the contract for the external text generation service.
// Implementations may return an error-describing string instead of an error;
// any non-parseable response is treated as an empty result, never as fatal.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Config 抽取器配置。
type Config struct {
	// Method 默认抽取方式，Extract 的 method 参数为空时生效。
	Method Method `json:"method" yaml:"method"`

	// MaxChunkChars LLM 抽取单块最大字符数。
	MaxChunkChars int `json:"max_chunk_chars" yaml:"max_chunk_chars"`

	// MaxChunkTokens 单块最大 token 数，0 表示不启用 token 预算。
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`

	// BaseConfidence 规则命中的默认置信度。
	BaseConfidence float64 `json:"base_confidence" yaml:"base_confidence"`

	// ShortSpanConfidence 任一跨度过短（<5 字符）时的降级置信度。
	ShortSpanConfidence float64 `json:"short_span_confidence" yaml:"short_span_confidence"`

	// DefaultLLMConfidence LLM 未返回置信度时的默认值。
	DefaultLLMConfidence float64 `json:"default_llm_confidence" yaml:"default_llm_confidence"`

	// Temperature / MaxTokens 传递给生成服务。
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`

	// RequestsPerSecond LLM 请求限速，0 表示不限速。
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// DefaultConfig 返回默认抽取配置。
func DefaultConfig() Config {
	return Config{
		Method:               MethodHybrid,
		MaxChunkChars:        3000,
		MaxChunkTokens:       0,
		BaseConfidence:       0.8,
		ShortSpanConfidence:  0.6,
		DefaultLLMConfidence: 0.7,
		Temperature:          0.0,
		MaxTokens:            1024,
		RequestsPerSecond:    0,
	}
}

// Extractor extracts causal triples from free text via surface-pattern rules,
// LLM structured extraction, or both. Extraction is strictly best-effort:
// failures on individual sentences or chunks are logged and skipped, and
// Extract never returns an error to the caller.
type Extractor struct {
	cfg       Config
	generator Generator
	limiter   *rate.Limiter
	tokens    *tokenCounter
	logger    *zap.Logger
}

// NewExtractor 创建抽取器。generator 可为 nil，此时 LLM 抽取退化为空结果。
func NewExtractor(cfg Config, generator Generator, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "triple_extractor"))

	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = 3000
	}
	if cfg.BaseConfidence <= 0 {
		cfg.BaseConfidence = 0.8
	}
	if cfg.ShortSpanConfidence <= 0 {
		cfg.ShortSpanConfidence = 0.6
	}
	if cfg.DefaultLLMConfidence <= 0 {
		cfg.DefaultLLMConfidence = 0.7
	}
	if cfg.Method == "" {
		cfg.Method = MethodHybrid
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	var tokens *tokenCounter
	if cfg.MaxChunkTokens > 0 {
		tokens = newTokenCounter(logger)
	}

	return &Extractor{
		cfg:       cfg,
		generator: generator,
		limiter:   limiter,
		tokens:    tokens,
		logger:    logger,
	}
}

// Extract extracts causal triples from text. An empty method selects the
// configured default. The result may be empty but is never accompanied by an
// error; degraded external calls surface as log warnings only.
func (e *Extractor) Extract(ctx context.Context, text string, method Method) []Triple {
	if method == "" {
		method = e.cfg.Method
	}

	switch method {
	case MethodRule:
		return e.extractRules(text)
	case MethodLLM:
		return e.extractLLM(ctx, text)
	case MethodHybrid:
		return e.extractHybrid(ctx, text)
	default:
		e.logger.Warn("unknown extraction method, falling back to hybrid",
			zap.String("method", string(method)))
		return e.extractHybrid(ctx, text)
	}
}

// extractHybrid unions rule and LLM results. Rule triples win on key
// collision: an LLM triple for an already-seen (cause, effect) is dropped.
func (e *Extractor) extractHybrid(ctx context.Context, text string) []Triple {
	triples := e.extractRules(text)

	seen := make(map[string]bool, len(triples))
	for _, t := range triples {
		seen[tripleKey(t.Cause, t.Effect)] = true
	}

	for _, t := range e.extractLLM(ctx, text) {
		if seen[tripleKey(t.Cause, t.Effect)] {
			continue
		}
		seen[tripleKey(t.Cause, t.Effect)] = true
		triples = append(triples, t)
	}
	return triples
}

func tripleKey(cause, effect string) string {
	return cause + "\x00" + effect
}
