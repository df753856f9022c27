package causal

import (
	"context"
	"testing"

	"github.com/BaSui01/causalrag/extract"
)

// climateBuilder seeds the graph with a small cause/effect chain:
//
//	greenhouse gases -> climate change -> rising sea levels -> coastal flooding -> property damage
func climateBuilder(t *testing.T) *Builder {
	t.Helper()
	b := newRuleBuilder(t)
	b.AddTriples(context.Background(), []extract.Triple{
		{Cause: "greenhouse gases", Effect: "climate change", Confidence: 0.9},
		{Cause: "climate change", Effect: "rising sea levels", Confidence: 0.9},
		{Cause: "rising sea levels", Effect: "coastal flooding", Confidence: 0.85},
		{Cause: "coastal flooding", Effect: "property damage", Confidence: 0.8},
	})
	return b
}

func TestRetrieveNodes(t *testing.T) {
	t.Parallel()
	b := climateBuilder(t)
	r := NewPathRetriever(b, DefaultPathConfig(), nil)

	nodes := r.RetrieveNodes(context.Background(), "What causes coastal flooding?", 5, 0.5)
	if len(nodes) != 1 {
		t.Fatalf("nodes = %v, want exactly the coastal flooding node", nodes)
	}
	if nodes[0].ID != "coastal flooding" {
		t.Fatalf("node = %q, want coastal flooding", nodes[0].ID)
	}
	if nodes[0].Score < 0.5 || nodes[0].Score > 1.0 {
		t.Fatalf("score = %v, want within [0.5, 1]", nodes[0].Score)
	}

	// Exact node text matches with similarity 1.
	exact := r.RetrieveNodes(context.Background(), "coastal flooding", 5, 0.5)
	if len(exact) == 0 || exact[0].ID != "coastal flooding" {
		t.Fatalf("exact = %v, want coastal flooding first", exact)
	}
	if exact[0].Score < 0.999 {
		t.Fatalf("exact score = %v, want ~1", exact[0].Score)
	}
}

func TestRetrieveNodesTopKAndThreshold(t *testing.T) {
	t.Parallel()
	b := climateBuilder(t)
	r := NewPathRetriever(b, DefaultPathConfig(), nil)

	if got := r.RetrieveNodes(context.Background(), "coastal flooding", 0, 0.5); got != nil {
		t.Fatalf("topK=0 should return nil, got %v", got)
	}
	// An impossible threshold filters everything.
	if got := r.RetrieveNodes(context.Background(), "quantum entanglement", 5, 0.99); len(got) != 0 {
		t.Fatalf("unrelated query = %v, want empty", got)
	}
}

func TestRetrieveNodesWithoutEmbedder(t *testing.T) {
	t.Parallel()
	cfg := extract.DefaultConfig()
	cfg.Method = extract.MethodRule
	b := NewBuilder(DefaultBuilderConfig(), extract.NewExtractor(cfg, nil, nil), nil, nil)
	r := NewPathRetriever(b, DefaultPathConfig(), nil)

	if got := r.RetrieveNodes(context.Background(), "anything", 5, 0.5); got != nil {
		t.Fatalf("no embedder should return nil, got %v", got)
	}
}

func TestRetrievePathNodes(t *testing.T) {
	t.Parallel()
	b := climateBuilder(t)
	r := NewPathRetriever(b, DefaultPathConfig(), nil)

	got := r.RetrievePathNodes(context.Background(), "What causes coastal flooding?", 5, 2, false)

	want := map[string]bool{
		"coastal flooding":  true, // seed
		"property damage":   true, // 1 hop forward
		"rising sea levels": true, // 1 hop backward
		"climate change":    true, // 2 hops backward
	}
	if len(got) != len(want) {
		t.Fatalf("path nodes = %v, want %d nodes", got, len(want))
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected node %q in %v", id, got)
		}
	}
}

func TestRetrievePathNodesSingleHop(t *testing.T) {
	t.Parallel()
	b := climateBuilder(t)
	r := NewPathRetriever(b, DefaultPathConfig(), nil)

	got := r.RetrievePathNodes(context.Background(), "What causes coastal flooding?", 5, 1, false)
	if len(got) != 3 {
		t.Fatalf("path nodes = %v, want seed plus one hop each way", got)
	}
	for _, id := range got {
		if id == "climate change" || id == "greenhouse gases" {
			t.Fatalf("node %q is beyond one hop of the seed", id)
		}
	}
}

func TestRetrievePaths(t *testing.T) {
	t.Parallel()
	b := climateBuilder(t)
	cfg := DefaultPathConfig()
	cfg.SeedMaxHops = 2
	r := NewPathRetriever(b, cfg, nil)

	paths := r.RetrievePaths(context.Background(), "What causes coastal flooding?", 10, 2, 4)
	if len(paths) == 0 {
		t.Fatal("expected at least one causal path")
	}

	// Paths are ordered by length ascending.
	for i := 1; i < len(paths); i++ {
		if len(paths[i]) < len(paths[i-1]) {
			t.Fatalf("paths not sorted by length: %v", paths)
		}
	}

	// The explanatory chain must be among the results, as display texts.
	found := false
	for _, p := range paths {
		if len(p) == 3 && p[0] == "climate change" && p[1] == "rising sea levels" && p[2] == "coastal flooding" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing climate change -> rising sea levels -> coastal flooding in %v", paths)
	}
}

func TestRetrievePathsMinLength(t *testing.T) {
	t.Parallel()
	b := climateBuilder(t)
	cfg := DefaultPathConfig()
	cfg.SeedMaxHops = 2
	r := NewPathRetriever(b, cfg, nil)

	paths := r.RetrievePaths(context.Background(), "What causes coastal flooding?", 10, 3, 4)
	if len(paths) == 0 {
		t.Fatal("expected multi-edge paths")
	}
	for _, p := range paths {
		if len(p) < 3 {
			t.Fatalf("path %v shorter than the minimum length", p)
		}
	}
}

func TestRetrievePathsMaxPathsTruncates(t *testing.T) {
	t.Parallel()
	b := climateBuilder(t)
	cfg := DefaultPathConfig()
	cfg.SeedMaxHops = 2
	r := NewPathRetriever(b, cfg, nil)

	paths := r.RetrievePaths(context.Background(), "What causes coastal flooding?", 2, 2, 4)
	if len(paths) > 2 {
		t.Fatalf("paths = %d, want at most 2", len(paths))
	}
}

func TestRetrievePathsNoRelevantNodes(t *testing.T) {
	t.Parallel()
	b := climateBuilder(t)
	r := NewPathRetriever(b, DefaultPathConfig(), nil)

	if paths := r.RetrievePaths(context.Background(), "quantum chromodynamics", 10, 2, 4); paths != nil {
		t.Fatalf("paths = %v, want nil for an unrelated query", paths)
	}
}
