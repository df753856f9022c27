package causal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/BaSui01/causalrag/graph"
)

// graphState is the canonical persistence schema. Node embeddings are not
// persisted: they are recomputed from the node texts on load, which keeps the
// file small and tolerates encoder changes across versions at the cost of
// re-embedding on load.
type graphState struct {
	Nodes    map[string]string   `json:"nodes"`
	Variants map[string][]string `json:"variants"`
	Edges    []graph.Edge        `json:"edges"`
}

// Save serializes the graph aggregate to path. The file is staged into a
// temporary sibling and renamed so a crash never leaves a half-written file.
func (b *Builder) Save(path string) error {
	b.mu.RLock()
	state := graphState{
		Nodes:    make(map[string]string, len(b.nodeText)),
		Variants: make(map[string][]string, len(b.nodeVariants)),
		Edges:    b.graph.Edges(),
	}
	for id, text := range b.nodeText {
		state.Nodes[id] = text
	}
	for id, variants := range b.nodeVariants {
		state.Variants[id] = append([]string(nil), variants...)
	}
	b.mu.RUnlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-*.json")
	if err != nil {
		return fmt.Errorf("stage graph file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write graph file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close graph file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit graph file: %w", err)
	}

	b.logger.Info("graph saved",
		zap.String("path", path),
		zap.Int("nodes", len(state.Nodes)),
		zap.Int("edges", len(state.Edges)))
	return nil
}

// Load replaces the builder's graph aggregate with the state stored at path.
// Returns false on any failure (missing file, malformed JSON, inconsistent
// state); in-memory state is only swapped after the file fully validates, so
// a failed load leaves the previous graph untouched.
func (b *Builder) Load(ctx context.Context, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		b.logger.Warn("graph load failed", zap.String("path", path), zap.Error(err))
		return false
	}

	var state graphState
	if err := json.Unmarshal(data, &state); err != nil {
		b.logger.Warn("graph file malformed", zap.String("path", path), zap.Error(err))
		return false
	}
	if err := validateState(state); err != nil {
		b.logger.Warn("graph file inconsistent", zap.String("path", path), zap.Error(err))
		return false
	}

	// Rebuild everything into temporaries first.
	g := graph.New(b.logger)
	for id := range state.Nodes {
		g.AddNode(id)
	}
	for _, e := range state.Edges {
		g.AddEdge(e.From, e.To, e.Weight)
	}

	order := make([]string, 0, len(state.Nodes))
	for _, id := range g.Nodes() {
		order = append(order, id)
	}

	embeddings := make(map[string][]float64, len(state.Nodes))
	if b.embedder != nil {
		ids := make([]string, 0, len(state.Nodes))
		texts := make([]string, 0, len(state.Nodes))
		for id, text := range state.Nodes {
			ids = append(ids, id)
			texts = append(texts, text)
		}
		vecs, err := b.embedder.EncodeAll(ctx, texts)
		if err != nil || len(vecs) != len(ids) {
			b.logger.Warn("re-embedding on load failed", zap.Error(err))
		} else {
			for i, id := range ids {
				embeddings[id] = vecs[i]
			}
		}
	}

	variants := make(map[string][]string, len(state.Variants))
	for id, vs := range state.Variants {
		variants[id] = append([]string(nil), vs...)
	}

	b.mu.Lock()
	b.graph = g
	b.nodeText = state.Nodes
	b.nodeVariants = variants
	b.nodeEmbeddings = embeddings
	b.nodeOrder = order
	b.mu.Unlock()

	b.logger.Info("graph loaded",
		zap.String("path", path),
		zap.Int("nodes", len(state.Nodes)),
		zap.Int("edges", len(state.Edges)))
	return true
}

func validateState(state graphState) error {
	if state.Nodes == nil {
		return fmt.Errorf("missing nodes map")
	}
	for _, e := range state.Edges {
		if _, ok := state.Nodes[e.From]; !ok {
			return fmt.Errorf("edge references unknown node %q", e.From)
		}
		if _, ok := state.Nodes[e.To]; !ok {
			return fmt.Errorf("edge references unknown node %q", e.To)
		}
		if e.Weight < 0 || e.Weight > 1 {
			return fmt.Errorf("edge %q -> %q has weight %v outside [0,1]", e.From, e.To, e.Weight)
		}
	}
	for id := range state.Variants {
		if _, ok := state.Nodes[id]; !ok {
			return fmt.Errorf("variants reference unknown node %q", id)
		}
	}
	return nil
}
