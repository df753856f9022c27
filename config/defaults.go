// 提供所有配置项的合理默认值。
package config

import (
	"time"

	"github.com/BaSui01/causalrag/causal"
	"github.com/BaSui01/causalrag/embedding"
	"github.com/BaSui01/causalrag/extract"
	"github.com/BaSui01/causalrag/retrieval"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Extraction:  extract.DefaultConfig(),
		Builder:     causal.DefaultBuilderConfig(),
		Paths:       causal.DefaultPathConfig(),
		BM25:        retrieval.DefaultBM25Config(),
		Hybrid:      retrieval.DefaultHybridConfig(),
		Reranker:    retrieval.DefaultRerankerConfig(),
		Embedding:   embedding.HashingEmbedderConfig{Dimension: 512},
		VectorStore: VectorStoreConfig{BatchSize: 32},
		Redis: RedisConfig{
			KeyPrefix: "causalrag:query:",
			TTL:       10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "causalrag",
		},
	}
}
