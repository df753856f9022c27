package causal

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/causalrag/embedding"
	"github.com/BaSui01/causalrag/extract"
	"github.com/BaSui01/causalrag/graph"
	"github.com/BaSui01/causalrag/internal/metrics"
)

// BuilderConfig 图构建器配置。
type BuilderConfig struct {
	// ConfidenceThreshold 低于该置信度的三元组在入图前被丢弃。
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// SimilarityThreshold 节点去重的余弦相似度阈值。
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// NormalizeNodes 为 false 时跳过嵌入去重，节点按文本恒等映射。
	NormalizeNodes bool `json:"normalize_nodes" yaml:"normalize_nodes"`

	// MinDocumentChars 短于该长度（trim 后）的文档按噪声跳过。
	MinDocumentChars int `json:"min_document_chars" yaml:"min_document_chars"`

	// ExtractionConcurrency 批内并行抽取的上限。图写入始终串行。
	ExtractionConcurrency int `json:"extraction_concurrency" yaml:"extraction_concurrency"`
}

// DefaultBuilderConfig 返回默认构建配置。
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		ConfidenceThreshold:   0.5,
		SimilarityThreshold:   0.85,
		NormalizeNodes:        true,
		MinDocumentChars:      10,
		ExtractionConcurrency: 4,
	}
}

// Builder orchestrates extraction into the causal graph. It owns the graph
// plus three auxiliary maps (node display text, node variants, cached node
// embeddings); the four are one aggregate and are persisted together.
//
// Builder is not safe for concurrent writers: callers must serialize
// IndexDocuments/AddTriples/Load on one instance. Reads may run concurrently
// with each other.
type Builder struct {
	mu        sync.RWMutex
	graph     *graph.DirectedGraph
	extractor *extract.Extractor
	embedder  embedding.Embedder

	nodeText       map[string]string
	nodeVariants   map[string][]string
	nodeEmbeddings map[string][]float64
	nodeOrder      []string // insertion order, used for deterministic dedup ties

	cfg     BuilderConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewBuilder 创建图构建器。embedder 为 nil 时节点去重退化为文本恒等映射。
func NewBuilder(cfg BuilderConfig, extractor *extract.Extractor, embedder embedding.Embedder, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.5
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.85
	}
	if cfg.MinDocumentChars <= 0 {
		cfg.MinDocumentChars = 10
	}
	if cfg.ExtractionConcurrency <= 0 {
		cfg.ExtractionConcurrency = 4
	}

	return &Builder{
		graph:          graph.New(logger),
		extractor:      extractor,
		embedder:       embedder,
		nodeText:       make(map[string]string),
		nodeVariants:   make(map[string][]string),
		nodeEmbeddings: make(map[string][]float64),
		cfg:            cfg,
		logger:         logger.With(zap.String("component", "causal_graph_builder")),
	}
}

// SetMetrics installs an optional metrics collector.
func (b *Builder) SetMetrics(c *metrics.Collector) { b.metrics = c }

// Graph returns the underlying directed graph.
func (b *Builder) Graph() *graph.DirectedGraph { return b.graph }

// NodeText returns the canonical display text of a node id.
func (b *Builder) NodeText(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	text, ok := b.nodeText[id]
	return text, ok
}

// NodeVariants returns the recorded alternate surface forms of a node id.
func (b *Builder) NodeVariants(id string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	variants := b.nodeVariants[id]
	out := make([]string, len(variants))
	copy(out, variants)
	return out
}

// IndexDocuments extracts triples from docs in batches and commits them to
// the graph, returning the number of new edges added. Documents shorter than
// MinDocumentChars after trimming are skipped as noise. Batching only groups
// extraction work and progress logging; the resulting graph is identical to
// committing each document on its own.
func (b *Builder) IndexDocuments(ctx context.Context, docs []string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 32
	}

	kept := make([]string, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		if len(strings.TrimSpace(doc)) < b.cfg.MinDocumentChars {
			skipped++
			continue
		}
		kept = append(kept, doc)
	}
	if skipped > 0 {
		b.logger.Debug("skipped short documents", zap.Int("count", skipped))
	}

	edgesBefore := b.graph.NumberOfEdges()

	for start := 0; start < len(kept); start += batchSize {
		end := start + batchSize
		if end > len(kept) {
			end = len(kept)
		}
		batch := kept[start:end]

		// Extraction fans out across the batch; graph mutation stays on
		// this goroutine. Slot assignment keeps document order stable so
		// node creation order does not depend on scheduling.
		results := make([][]extract.Triple, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.cfg.ExtractionConcurrency)
		for i, doc := range batch {
			i, doc := i, doc
			g.Go(func() error {
				results[i] = b.extractor.Extract(gctx, doc, "")
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return b.graph.NumberOfEdges() - edgesBefore, err
		}
		if err := ctx.Err(); err != nil {
			return b.graph.NumberOfEdges() - edgesBefore, err
		}

		var triples []extract.Triple
		for _, r := range results {
			triples = append(triples, r...)
		}
		b.AddTriples(ctx, triples)

		b.logger.Info("indexed document batch",
			zap.Int("documents", len(batch)),
			zap.Int("triples", len(triples)),
			zap.Int("graph_edges", b.graph.NumberOfEdges()))
	}

	return b.graph.NumberOfEdges() - edgesBefore, nil
}

// AddTriples commits triples at or above the confidence threshold to the
// graph, resolving cause/effect text to node ids via embedding dedup. Returns
// the number of triples committed (an overwrite of an existing edge counts).
func (b *Builder) AddTriples(ctx context.Context, triples []extract.Triple) int {
	committed := 0
	discarded := 0

	for _, t := range triples {
		if t.Confidence < b.cfg.ConfidenceThreshold {
			discarded++
			continue
		}
		causeID := b.getOrCreateNode(ctx, t.Cause)
		effectID := b.getOrCreateNode(ctx, t.Effect)
		if causeID == "" || effectID == "" {
			continue
		}
		b.graph.AddEdge(causeID, effectID, t.Confidence)
		committed++
	}

	b.metrics.RecordTriples("graph", committed)
	b.metrics.RecordDiscardedTriples(discarded)
	return committed
}

// getOrCreateNode resolves text to a node id. With an embedder configured and
// NormalizeNodes enabled, the text is folded into the best-matching existing
// node above the similarity threshold and recorded as a variant; ties on
// similarity resolve to the earliest-inserted node. Otherwise the id is the
// text itself.
func (b *Builder) getOrCreateNode(ctx context.Context, text string) string {
	if text == "" {
		return ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.nodeText[text]; ok {
		return text
	}

	if b.embedder == nil || !b.cfg.NormalizeNodes {
		b.createNodeLocked(text, nil)
		return text
	}

	vec, err := b.embedder.Encode(ctx, text)
	if err != nil {
		// Encoding failures degrade to an identity-mapped node; committed
		// graph state stays intact.
		b.logger.Warn("node embedding failed, skipping dedup",
			zap.String("text", text),
			zap.Error(err))
		b.createNodeLocked(text, nil)
		return text
	}

	bestID := ""
	bestSim := 0.0
	for _, id := range b.nodeOrder {
		sim := embedding.Cosine(vec, b.nodeEmbeddings[id])
		if sim > bestSim {
			bestSim = sim
			bestID = id
		}
	}

	if bestID != "" && bestSim > b.cfg.SimilarityThreshold {
		b.recordVariantLocked(bestID, text)
		return bestID
	}

	b.createNodeLocked(text, vec)
	return text
}

func (b *Builder) createNodeLocked(text string, vec []float64) {
	b.nodeText[text] = text
	if vec != nil {
		b.nodeEmbeddings[text] = vec
	}
	b.nodeOrder = append(b.nodeOrder, text)
	b.metrics.RecordNodeCreated()
}

func (b *Builder) recordVariantLocked(id, variant string) {
	if variant == b.nodeText[id] {
		return
	}
	for _, v := range b.nodeVariants[id] {
		if v == variant {
			return
		}
	}
	b.nodeVariants[id] = append(b.nodeVariants[id], variant)
	b.metrics.RecordNodeVariant()
	b.logger.Debug("folded node variant",
		zap.String("node", id),
		zap.String("variant", variant))
}
