package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/causalrag/embedding"
)

const (
	vectorsFile  = "vectors.json"
	metadataFile = "metadata.json"
)

// SearchResult is one vector search hit.
type SearchResult struct {
	ID       string         `json:"id"`
	Passage  string         `json:"passage"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorStoreRetriever 基于缓存嵌入的暴力余弦检索器。
//
// 内部维护 ids / vectors / passages / metadata 四个平行数组，
// 任意时刻四者长度一致且下标 i 指向同一段落；IndexCorpus 与
// LoadIndex 以整体替换的方式保持该不变量。
type VectorStoreRetriever struct {
	mu       sync.RWMutex
	embedder embedding.Embedder

	ids      []string
	vectors  [][]float64
	passages []string
	metadata []map[string]any

	batchSize int
	logger    *zap.Logger
}

// NewVectorStoreRetriever 创建向量检索器。batchSize <= 0 时取 32。
func NewVectorStoreRetriever(embedder embedding.Embedder, batchSize int, logger *zap.Logger) *VectorStoreRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &VectorStoreRetriever{
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger.With(zap.String("component", "vector_store_retriever")),
	}
}

// Size returns the number of indexed passages.
func (r *VectorStoreRetriever) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.passages)
}

// Passages returns a copy of the indexed passage texts in index order.
func (r *VectorStoreRetriever) Passages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.passages))
	copy(out, r.passages)
	return out
}

// IndexCorpus (re)builds the index from texts. Encoding is batched to bound
// per-call payload size. ids are generated when nil; metadata entries default
// to empty objects. With storeOriginal=false the caller asserts the passage
// texts are unchanged from the current index; if the lengths disagree the
// assertion is wrong and the index is rebuilt from texts with a warning, since
// silently misaligned indices would corrupt every downstream lookup.
func (r *VectorStoreRetriever) IndexCorpus(ctx context.Context, texts []string, metadata []map[string]any, ids []string, storeOriginal bool) error {
	if r.embedder == nil {
		return fmt.Errorf("vector store has no embedder")
	}
	if metadata != nil && len(metadata) != len(texts) {
		return fmt.Errorf("metadata length %d does not match %d texts", len(metadata), len(texts))
	}
	if ids != nil && len(ids) != len(texts) {
		return fmt.Errorf("ids length %d does not match %d texts", len(ids), len(texts))
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += r.batchSize {
		end := start + r.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := r.embedder.EncodeAll(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("encode corpus batch [%d:%d]: %w", start, end, err)
		}
		if len(batch) != end-start {
			return fmt.Errorf("encoder returned %d vectors for %d texts", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}

	if ids == nil {
		ids = make([]string, len(texts))
		for i := range ids {
			ids[i] = uuid.NewString()
		}
	}
	if metadata == nil {
		metadata = make([]map[string]any, len(texts))
		for i := range metadata {
			metadata[i] = map[string]any{}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !storeOriginal {
		if len(r.passages) == len(texts) {
			r.vectors = vectors
			r.logger.Info("corpus re-encoded in place", zap.Int("passages", len(texts)))
			return nil
		}
		r.logger.Warn("storeOriginal=false but passage count changed, rebuilding index",
			zap.Int("indexed", len(r.passages)),
			zap.Int("incoming", len(texts)))
	}

	r.ids = ids
	r.vectors = vectors
	r.passages = append([]string(nil), texts...)
	r.metadata = metadata
	r.logger.Info("corpus indexed", zap.Int("passages", len(texts)))
	return nil
}

// SearchWithScores runs brute-force cosine similarity against every stored
// vector and returns the topK hits by similarity descending. threshold > 0
// filters hits below it. An encoder failure or empty index yields an empty
// result with a warning, never an error.
func (r *VectorStoreRetriever) SearchWithScores(ctx context.Context, query string, topK int, threshold float64) []SearchResult {
	if r.embedder == nil || topK <= 0 {
		return nil
	}
	queryVec, err := r.embedder.Encode(ctx, query)
	if err != nil {
		r.logger.Warn("query encoding failed", zap.Error(err))
		return nil
	}

	r.mu.RLock()
	results := make([]SearchResult, 0, len(r.vectors))
	for i, vec := range r.vectors {
		score := embedding.Cosine(queryVec, vec)
		if threshold > 0 && score < threshold {
			continue
		}
		results = append(results, SearchResult{
			ID:       r.ids[i],
			Passage:  r.passages[i],
			Score:    score,
			Metadata: r.metadata[i],
		})
	}
	r.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Search is SearchWithScores reduced to passage texts.
func (r *VectorStoreRetriever) Search(ctx context.Context, query string, topK int) []string {
	hits := r.SearchWithScores(ctx, query, topK, 0)
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Passage
	}
	return out
}

// indexMetadata is the metadata.json schema; vectors.json holds a plain
// array of float arrays in the same order.
type indexMetadata struct {
	IDs      []string         `json:"ids"`
	Metadata []map[string]any `json:"metadata"`
	Passages []string         `json:"passages"`
}

// SaveIndex writes vectors.json and metadata.json into dir. Returns false
// when there is nothing to save or on any I/O failure (logged).
func (r *VectorStoreRetriever) SaveIndex(dir string) bool {
	r.mu.RLock()
	if len(r.passages) == 0 {
		r.mu.RUnlock()
		r.logger.Warn("save skipped, index is empty", zap.String("dir", dir))
		return false
	}
	vectors := make([][]float64, len(r.vectors))
	copy(vectors, r.vectors)
	meta := indexMetadata{
		IDs:      append([]string(nil), r.ids...),
		Metadata: append([]map[string]any(nil), r.metadata...),
		Passages: append([]string(nil), r.passages...),
	}
	r.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.logger.Warn("save failed", zap.String("dir", dir), zap.Error(err))
		return false
	}
	if !writeJSON(filepath.Join(dir, vectorsFile), vectors, r.logger) {
		return false
	}
	if !writeJSON(filepath.Join(dir, metadataFile), meta, r.logger) {
		return false
	}
	r.logger.Info("index saved", zap.String("dir", dir), zap.Int("passages", len(meta.Passages)))
	return true
}

// LoadIndex replaces the in-memory index from dir. Returns false on missing
// files, malformed JSON or misaligned arrays; the previous index is kept
// untouched on failure.
func (r *VectorStoreRetriever) LoadIndex(dir string) bool {
	var vectors [][]float64
	if !readJSON(filepath.Join(dir, vectorsFile), &vectors, r.logger) {
		return false
	}
	var meta indexMetadata
	if !readJSON(filepath.Join(dir, metadataFile), &meta, r.logger) {
		return false
	}

	n := len(meta.Passages)
	if len(vectors) != n || len(meta.IDs) != n || len(meta.Metadata) != n {
		r.logger.Warn("index files misaligned",
			zap.String("dir", dir),
			zap.Int("vectors", len(vectors)),
			zap.Int("ids", len(meta.IDs)),
			zap.Int("metadata", len(meta.Metadata)),
			zap.Int("passages", n))
		return false
	}

	r.mu.Lock()
	r.ids = meta.IDs
	r.vectors = vectors
	r.passages = meta.Passages
	r.metadata = meta.Metadata
	r.mu.Unlock()

	r.logger.Info("index loaded", zap.String("dir", dir), zap.Int("passages", n))
	return true
}

func writeJSON(path string, v any, logger *zap.Logger) bool {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("marshal failed", zap.String("path", path), zap.Error(err))
		return false
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("write failed", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

func readJSON(path string, v any, logger *zap.Logger) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("read failed", zap.String("path", path), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn("unmarshal failed", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}
