package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/causalrag/embedding"
)

func newTestVectorStore(t *testing.T) *VectorStoreRetriever {
	t.Helper()
	embedder := embedding.NewHashingEmbedder(embedding.HashingEmbedderConfig{}, nil)
	// Batch size 2 so multi-document corpora exercise the batching path.
	return NewVectorStoreRetriever(embedder, 2, nil)
}

var vectorCorpus = []string{
	"coastal flooding damages homes near the shore",
	"dogs chase cats in the park",
	"quantum field theory lecture notes",
}

func TestIndexCorpusAndSearch(t *testing.T) {
	t.Parallel()
	r := newTestVectorStore(t)
	if err := r.IndexCorpus(context.Background(), vectorCorpus, nil, nil, true); err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}
	if r.Size() != 3 {
		t.Fatalf("size = %d, want 3", r.Size())
	}

	hits := r.SearchWithScores(context.Background(), "coastal flooding", 3, 0)
	if len(hits) != 3 {
		t.Fatalf("hits = %d, want 3", len(hits))
	}
	if hits[0].Passage != vectorCorpus[0] {
		t.Fatalf("top hit = %q, want the flooding passage", hits[0].Passage)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("scores not descending: %v vs %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].ID == "" || hits[0].ID == hits[1].ID {
		t.Fatal("generated ids must be non-empty and unique")
	}

	// Threshold filters weak matches.
	strict := r.SearchWithScores(context.Background(), "coastal flooding", 3, 0.5)
	if len(strict) != 1 {
		t.Fatalf("thresholded hits = %v, want only the flooding passage", strict)
	}
}

func TestIndexCorpusValidation(t *testing.T) {
	t.Parallel()
	r := newTestVectorStore(t)

	if err := r.IndexCorpus(context.Background(), vectorCorpus, []map[string]any{{}}, nil, true); err == nil {
		t.Fatal("expected error on metadata length mismatch")
	}
	if err := r.IndexCorpus(context.Background(), vectorCorpus, nil, []string{"only-one"}, true); err == nil {
		t.Fatal("expected error on ids length mismatch")
	}
}

func TestIndexCorpusStoreOriginalInPlace(t *testing.T) {
	t.Parallel()
	r := newTestVectorStore(t)
	if err := r.IndexCorpus(context.Background(), vectorCorpus, nil, nil, true); err != nil {
		t.Fatal(err)
	}
	before := r.Passages()

	// Same passage count: vectors are refreshed, passages untouched.
	if err := r.IndexCorpus(context.Background(), vectorCorpus, nil, nil, false); err != nil {
		t.Fatal(err)
	}
	after := r.Passages()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("passage %d changed on in-place re-encode", i)
		}
	}
}

func TestIndexCorpusStoreOriginalMisalignedRebuilds(t *testing.T) {
	t.Parallel()
	r := newTestVectorStore(t)
	if err := r.IndexCorpus(context.Background(), vectorCorpus[:2], nil, nil, true); err != nil {
		t.Fatal(err)
	}

	// Caller claims identity but the count disagrees: the index is rebuilt
	// rather than left silently misaligned.
	if err := r.IndexCorpus(context.Background(), vectorCorpus, nil, nil, false); err != nil {
		t.Fatal(err)
	}
	if r.Size() != 3 {
		t.Fatalf("size = %d, want 3 after rebuild", r.Size())
	}
}

func TestSaveLoadIndexRoundTrip(t *testing.T) {
	t.Parallel()
	r := newTestVectorStore(t)
	meta := []map[string]any{
		{"source": "news"},
		{"source": "blog"},
		{"source": "paper"},
	}
	if err := r.IndexCorpus(context.Background(), vectorCorpus, meta, nil, true); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if !r.SaveIndex(dir) {
		t.Fatal("SaveIndex returned false for a populated index")
	}

	fresh := newTestVectorStore(t)
	if !fresh.LoadIndex(dir) {
		t.Fatal("LoadIndex returned false for a valid directory")
	}
	if fresh.Size() != r.Size() {
		t.Fatalf("size = %d, want %d", fresh.Size(), r.Size())
	}
	a, b := r.Passages(), fresh.Passages()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("passage %d differs after round trip", i)
		}
	}

	hits := fresh.SearchWithScores(context.Background(), "coastal flooding", 1, 0)
	if len(hits) != 1 || hits[0].Passage != vectorCorpus[0] {
		t.Fatalf("post-load search = %v, want the flooding passage", hits)
	}
	if got := hits[0].Metadata["source"]; got != "news" {
		t.Fatalf("metadata = %v, want source=news", hits[0].Metadata)
	}
}

func TestSaveIndexEmptyCorpus(t *testing.T) {
	t.Parallel()
	r := newTestVectorStore(t)
	dir := t.TempDir()

	if r.SaveIndex(dir) {
		t.Fatal("SaveIndex must return false with nothing to save")
	}

	fresh := newTestVectorStore(t)
	if fresh.LoadIndex(dir) {
		t.Fatal("LoadIndex must return false when no index files exist")
	}
	if hits := fresh.Search(context.Background(), "anything", 5); len(hits) != 0 {
		t.Fatalf("search = %v, want empty", hits)
	}
}

func TestLoadIndexMisalignedFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, vectorsFile), []byte(`[[1,0],[0,1]]`), 0o644); err != nil {
		t.Fatal(err)
	}
	payload := `{"ids":["a"],"metadata":[{}],"passages":["only one"]}`
	if err := os.WriteFile(filepath.Join(dir, metadataFile), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newTestVectorStore(t)
	if r.LoadIndex(dir) {
		t.Fatal("LoadIndex must reject misaligned arrays")
	}
	if r.Size() != 0 {
		t.Fatal("failed load must leave the index empty")
	}
}
