package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.Builder.ConfidenceThreshold)
	assert.Equal(t, 0.85, cfg.Builder.SimilarityThreshold)
	assert.Equal(t, 1.5, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B)
	assert.Equal(t, 512, cfg.Embedding.Dimension)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Builder, cfg.Builder)
}

func TestLoadRequiredMissingFileFails(t *testing.T) {
	_, err := NewLoader().
		WithRequiredConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).
		Load()
	require.Error(t, err)
}

func TestLoadFromYAMLFile(t *testing.T) {
	payload := `
builder:
  confidence_threshold: 0.7
extraction:
  method: rule
hybrid:
  semantic_weight: 0.8
  causal_weight: 1.2
  bm25_weight: 0.0
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "causalrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Builder.ConfidenceThreshold)
	assert.Equal(t, "rule", string(cfg.Extraction.Method))
	assert.Equal(t, 0.8, cfg.Hybrid.SemanticWeight)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultConfig().BM25, cfg.BM25)
}

func TestLoadMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("builder: ["), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAUSALRAG_LOG_LEVEL", "warn")
	t.Setenv("CAUSALRAG_REDIS_ADDR", "localhost:6379")
	t.Setenv("CAUSALRAG_REDIS_TTL", "5m")
	t.Setenv("CAUSALRAG_VECTOR_STORE_BATCH_SIZE", "8")
	t.Setenv("CAUSALRAG_METRICS_ENABLED", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "5m0s", cfg.Redis.TTL.String())
	assert.Equal(t, 8, cfg.VectorStore.BatchSize)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"confidence threshold": func(c *Config) { c.Builder.ConfidenceThreshold = 1.5 },
		"similarity threshold": func(c *Config) { c.Builder.SimilarityThreshold = -0.1 },
		"hybrid weights":       func(c *Config) { c.Hybrid.SemanticWeight, c.Hybrid.CausalWeight, c.Hybrid.BM25Weight = 0, 0, 0 },
		"bm25 b":               func(c *Config) { c.BM25.B = 1.2 },
		"batch size":           func(c *Config) { c.VectorStore.BatchSize = 0 },
		"embedding dimension":  func(c *Config) { c.Embedding.Dimension = -1 },
		"log level":            func(c *Config) { c.Log.Level = "verbose" },
		"path lengths":         func(c *Config) { c.Paths.MinPathLength = 10; c.Paths.MaxPathLength = 2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate(), name)
		})
	}
}

func TestCustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.Redis.Addr == "" {
				return assert.AnError
			}
			return nil
		}).
		Load()
	require.Error(t, err)
}

func TestBuildLogger(t *testing.T) {
	logger, err := LogConfig{Level: "info", Format: "json"}.BuildLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = LogConfig{Level: "nope", Format: "json"}.BuildLogger()
	require.Error(t, err)

	_, err = LogConfig{Level: "info", Format: "xml"}.BuildLogger()
	require.Error(t, err)
}
