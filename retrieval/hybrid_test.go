package retrieval

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/causalrag/causal"
	"github.com/BaSui01/causalrag/embedding"
	"github.com/BaSui01/causalrag/extract"
)

// countingEmbedder wraps an embedder and counts encode calls; used to prove
// that a cache hit skips recomputation entirely.
type countingEmbedder struct {
	inner embedding.Embedder
	calls int
}

func (c *countingEmbedder) Encode(ctx context.Context, text string) ([]float64, error) {
	c.calls++
	return c.inner.Encode(ctx, text)
}

func (c *countingEmbedder) EncodeAll(ctx context.Context, texts []string) ([][]float64, error) {
	c.calls += len(texts)
	return c.inner.EncodeAll(ctx, texts)
}

func (c *countingEmbedder) Name() string { return "counting" }

var hybridCorpus = []string{
	"Climate change causes rising sea levels which lead to coastal flooding.",
	"Rising sea levels lead to coastal flooding in many regions.",
	"The local bakery sells fresh bread every morning.",
}

func newClimateCausalRetriever(t *testing.T, embedder embedding.Embedder) *causal.PathRetriever {
	t.Helper()
	ecfg := extract.DefaultConfig()
	ecfg.Method = extract.MethodRule
	b := causal.NewBuilder(causal.DefaultBuilderConfig(), extract.NewExtractor(ecfg, nil, nil), embedder, nil)
	b.AddTriples(context.Background(), []extract.Triple{
		{Cause: "greenhouse gases", Effect: "climate change", Confidence: 0.9},
		{Cause: "climate change", Effect: "rising sea levels", Confidence: 0.9},
		{Cause: "rising sea levels", Effect: "coastal flooding", Confidence: 0.85},
	})
	pcfg := causal.DefaultPathConfig()
	pcfg.SeedMaxHops = 2
	return causal.NewPathRetriever(b, pcfg, nil)
}

func newHybridStack(t *testing.T, cfg HybridConfig, embedder embedding.Embedder) *HybridRetriever {
	t.Helper()
	semantic := NewVectorStoreRetriever(embedder, 0, nil)
	if err := semantic.IndexCorpus(context.Background(), hybridCorpus, nil, nil, true); err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}
	bm25 := NewBM25Retriever(DefaultBM25Config(), nil)
	bm25.IndexDocuments(hybridCorpus)

	h, err := NewHybridRetriever(cfg, semantic, bm25, newClimateCausalRetriever(t, embedder), nil)
	if err != nil {
		t.Fatalf("NewHybridRetriever: %v", err)
	}
	return h
}

func TestHybridWeightNormalization(t *testing.T) {
	t.Parallel()
	embedder := embedding.NewHashingEmbedder(embedding.HashingEmbedderConfig{}, nil)
	cfg := DefaultHybridConfig()
	cfg.SemanticWeight, cfg.CausalWeight, cfg.BM25Weight = 0.8, 1.2, 0

	h := newHybridStack(t, cfg, embedder)
	s, c, b := h.Weights()
	if math.Abs(s+c+b-1.0) > 1e-9 {
		t.Fatalf("weights sum = %v, want 1.0", s+c+b)
	}
	if math.Abs(s-0.4) > 1e-9 || math.Abs(c-0.6) > 1e-9 || b != 0 {
		t.Fatalf("weights = %v/%v/%v, want 0.4/0.6/0", s, c, b)
	}
}

func TestHybridConstructorRejectsInvalidInputs(t *testing.T) {
	t.Parallel()
	embedder := embedding.NewHashingEmbedder(embedding.HashingEmbedderConfig{}, nil)
	semantic := NewVectorStoreRetriever(embedder, 0, nil)

	cfg := DefaultHybridConfig()
	cfg.SemanticWeight, cfg.CausalWeight, cfg.BM25Weight = 0, 0, 0
	if _, err := NewHybridRetriever(cfg, semantic, nil, nil, nil); err == nil {
		t.Fatal("expected error for a non-positive weight sum")
	}
	if _, err := NewHybridRetriever(DefaultHybridConfig(), nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for a nil semantic retriever")
	}
}

func TestHybridRetrieveRanksCausalPassageFirst(t *testing.T) {
	t.Parallel()
	embedder := embedding.NewHashingEmbedder(embedding.HashingEmbedderConfig{}, nil)
	h := newHybridStack(t, DefaultHybridConfig(), embedder)

	ranked := h.Retrieve(context.Background(), "What causes coastal flooding?", 3)
	if len(ranked) != 3 {
		t.Fatalf("ranked = %d, want 3", len(ranked))
	}
	if ranked[0].Passage != hybridCorpus[0] {
		t.Fatalf("top = %q, want the full causal-chain passage", ranked[0].Passage)
	}
	if ranked[2].Passage != hybridCorpus[2] {
		t.Fatalf("last = %q, want the bakery passage", ranked[2].Passage)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Fatalf("scores not descending at %d", i)
		}
	}
	if len(ranked[0].Details.MatchedNodes) == 0 {
		t.Fatal("top passage should have matched causal nodes")
	}
}

func TestHybridCacheHitShortCircuits(t *testing.T) {
	t.Parallel()
	counting := &countingEmbedder{inner: embedding.NewHashingEmbedder(embedding.HashingEmbedderConfig{}, nil)}
	h := newHybridStack(t, DefaultHybridConfig(), counting)
	ctx := context.Background()
	query := "What causes coastal flooding?"

	first := h.Retrieve(ctx, query, 2)
	if len(first) == 0 {
		t.Fatal("expected results")
	}
	after := counting.calls

	second := h.Retrieve(ctx, query, 2)
	if counting.calls != after {
		t.Fatalf("cache hit re-encoded: %d -> %d calls", after, counting.calls)
	}
	if len(second) != len(first) || second[0].Passage != first[0].Passage {
		t.Fatalf("cached results differ: %v vs %v", second, first)
	}

	// The cache stores the full list, so a larger topK still hits.
	third := h.Retrieve(ctx, query, 3)
	if counting.calls != after {
		t.Fatal("larger topK on the same query should still hit the cache")
	}
	if len(third) != 3 {
		t.Fatalf("ranked = %d, want 3", len(third))
	}

	h.ClearCache(ctx)
	h.Retrieve(ctx, query, 2)
	if counting.calls == after {
		t.Fatal("retrieval after ClearCache must recompute")
	}
}

func TestHybridMinCausalMatchesFilter(t *testing.T) {
	t.Parallel()
	embedder := embedding.NewHashingEmbedder(embedding.HashingEmbedderConfig{}, nil)
	cfg := DefaultHybridConfig()
	cfg.MinCausalMatches = 1
	h := newHybridStack(t, cfg, embedder)

	ranked := h.Retrieve(context.Background(), "What causes coastal flooding?", 3)
	for _, sp := range ranked {
		if sp.Passage == hybridCorpus[2] {
			t.Fatal("passage with zero causal matches must be filtered")
		}
		if len(sp.Details.MatchedNodes) < 1 {
			t.Fatalf("passage %q survived the filter without matches", sp.Passage)
		}
	}
}

func TestHybridNonCausalQueryNotZeroed(t *testing.T) {
	t.Parallel()
	embedder := embedding.NewHashingEmbedder(embedding.HashingEmbedderConfig{}, nil)
	cfg := DefaultHybridConfig()
	cfg.MinCausalMatches = 1
	h := newHybridStack(t, cfg, embedder)

	// The query touches no causal node, so the filter must not apply.
	ranked := h.Retrieve(context.Background(), "fresh bread from the bakery", 3)
	if len(ranked) != 3 {
		t.Fatalf("ranked = %d, want all passages", len(ranked))
	}
	if ranked[0].Passage != hybridCorpus[2] {
		t.Fatalf("top = %q, want the bakery passage", ranked[0].Passage)
	}
}

func TestHybridGetExplanation(t *testing.T) {
	t.Parallel()
	embedder := embedding.NewHashingEmbedder(embedding.HashingEmbedderConfig{}, nil)
	h := newHybridStack(t, DefaultHybridConfig(), embedder)
	ctx := context.Background()
	query := "What causes coastal flooding?"

	if got := h.GetExplanation(ctx, query, hybridCorpus[0]); !strings.Contains(got, "no cached retrieval") {
		t.Fatalf("explanation before retrieval = %q, want the fallback", got)
	}

	h.Retrieve(ctx, query, 3)

	got := h.GetExplanation(ctx, query, hybridCorpus[0])
	if !strings.Contains(got, "semantic") || !strings.Contains(got, "bm25") {
		t.Fatalf("explanation = %q, want a per-source breakdown", got)
	}
	if !strings.Contains(got, "matched nodes") {
		t.Fatalf("explanation = %q, want matched nodes listed", got)
	}

	if got := h.GetExplanation(ctx, query, "never retrieved"); !strings.Contains(got, "not present") {
		t.Fatalf("explanation for unknown passage = %q", got)
	}
	// Lookup is exact on the raw query text, not fuzzy.
	if got := h.GetExplanation(ctx, "what causes coastal flooding?", hybridCorpus[0]); !strings.Contains(got, "no cached retrieval") {
		t.Fatalf("case-differing query should miss, got %q", got)
	}
}

func TestHybridRedisCacheBackend(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	counting := &countingEmbedder{inner: embedding.NewHashingEmbedder(embedding.HashingEmbedderConfig{}, nil)}
	h := newHybridStack(t, DefaultHybridConfig(), counting)
	h.SetQueryCache(NewRedisQueryCache(client, "test:hybrid:", time.Minute, nil))

	ctx := context.Background()
	query := "What causes coastal flooding?"

	first := h.Retrieve(ctx, query, 2)
	if len(first) == 0 {
		t.Fatal("expected results")
	}
	after := counting.calls

	second := h.Retrieve(ctx, query, 2)
	if counting.calls != after {
		t.Fatal("redis cache hit must skip recomputation")
	}
	if second[0].Passage != first[0].Passage {
		t.Fatalf("cached top = %q, want %q", second[0].Passage, first[0].Passage)
	}
}
