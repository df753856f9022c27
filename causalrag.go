// Package causalrag builds a causal knowledge graph from free text and uses
// it, together with vector and lexical retrieval, to answer natural-language
// questions with causally-grounded evidence.
//
// Usage:
//
//	import "github.com/BaSui01/causalrag"
//
//	p, err := causalrag.New()
//	p, err := causalrag.New(causalrag.WithGenerator(llm), causalrag.WithEmbedder(enc))
//
//	added, err := p.IndexDocuments(ctx, docs)
//	results := p.Query(ctx, "What causes coastal flooding?", 5)
//
// The pipeline wires the extraction, graph, and retrieval packages together;
// each stays independently usable for callers that need finer control.
package causalrag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/causalrag/causal"
	"github.com/BaSui01/causalrag/config"
	"github.com/BaSui01/causalrag/embedding"
	"github.com/BaSui01/causalrag/extract"
	"github.com/BaSui01/causalrag/internal/metrics"
	"github.com/BaSui01/causalrag/retrieval"
)

const (
	graphFile      = "graph.json"
	vectorCacheDir = "vector_cache"
)

type options struct {
	cfg        *config.Config
	logger     *zap.Logger
	embedder   embedding.Embedder
	generator  extract.Generator
	registerer prometheus.Registerer
	queryCache retrieval.QueryCache
}

// Option configures the pipeline created by [New].
type Option func(*options)

// WithConfig 使用给定配置替代默认配置。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger 设置日志器，默认不输出。
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEmbedder 注入外部嵌入服务，默认使用本地哈希嵌入器。
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithGenerator 注入 LLM 生成服务，启用 LLM/hybrid 抽取。
func WithGenerator(g extract.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithMetricsRegisterer 设置 Prometheus 注册表，配合 Metrics.Enabled 使用。
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithQueryCache 替换混合检索的查询缓存后端。
func WithQueryCache(cache retrieval.QueryCache) Option {
	return func(o *options) { o.queryCache = cache }
}

// Pipeline 因果检索管线：文档入图、混合检索与因果重排、整体持久化。
//
// 写操作（IndexDocuments / Load）之间需由调用方串行化；
// Query 之间可以并发。
type Pipeline struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder embedding.Embedder

	builder  *causal.Builder
	paths    *causal.PathRetriever
	bm25     *retrieval.BM25Retriever
	vectors  *retrieval.VectorStoreRetriever
	hybrid   *retrieval.HybridRetriever
	reranker *retrieval.CausalPathReranker

	metrics *metrics.Collector
}

// New 创建管线。所有组件共用同一配置与日志器。
func New(opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.embedder == nil {
		o.embedder = embedding.NewHashingEmbedder(o.cfg.Embedding, o.logger)
	}

	extractor := extract.NewExtractor(o.cfg.Extraction, o.generator, o.logger)
	builder := causal.NewBuilder(o.cfg.Builder, extractor, o.embedder, o.logger)
	paths := causal.NewPathRetriever(builder, o.cfg.Paths, o.logger)
	bm25 := retrieval.NewBM25Retriever(o.cfg.BM25, o.logger)
	vectors := retrieval.NewVectorStoreRetriever(o.embedder, o.cfg.VectorStore.BatchSize, o.logger)

	hybrid, err := retrieval.NewHybridRetriever(o.cfg.Hybrid, vectors, bm25, paths, o.logger)
	if err != nil {
		return nil, err
	}
	reranker := retrieval.NewCausalPathReranker(o.cfg.Reranker, paths, o.logger)

	p := &Pipeline{
		cfg:      o.cfg,
		logger:   o.logger.With(zap.String("component", "pipeline")),
		embedder: o.embedder,
		builder:  builder,
		paths:    paths,
		bm25:     bm25,
		vectors:  vectors,
		hybrid:   hybrid,
		reranker: reranker,
	}

	if o.cfg.Metrics.Enabled {
		p.metrics = metrics.NewCollector(o.cfg.Metrics.Namespace, o.registerer, o.logger)
		builder.SetMetrics(p.metrics)
		hybrid.SetMetrics(p.metrics)
		reranker.SetMetrics(p.metrics)
	}

	switch {
	case o.queryCache != nil:
		hybrid.SetQueryCache(o.queryCache)
	case o.cfg.Redis.Addr != "":
		client := redis.NewClient(&redis.Options{
			Addr:     o.cfg.Redis.Addr,
			Password: o.cfg.Redis.Password,
			DB:       o.cfg.Redis.DB,
		})
		hybrid.SetQueryCache(retrieval.NewRedisQueryCache(client, o.cfg.Redis.KeyPrefix, o.cfg.Redis.TTL, o.logger))
	}

	return p, nil
}

// Builder exposes the underlying graph builder for direct triple access.
func (p *Pipeline) Builder() *causal.Builder { return p.builder }

// IndexDocuments feeds docs into every index: causal graph, vector store and
// BM25 corpus. The query cache is invalidated afterwards since cached results
// carry no freshness check. Returns the number of new graph edges.
func (p *Pipeline) IndexDocuments(ctx context.Context, docs []string) (int, error) {
	added, err := p.builder.IndexDocuments(ctx, docs, 32)
	if err != nil {
		return added, err
	}
	if err := p.vectors.IndexCorpus(ctx, docs, nil, nil, true); err != nil {
		return added, fmt.Errorf("index vector corpus: %w", err)
	}
	p.bm25.IndexDocuments(docs)
	p.hybrid.ClearCache(ctx)

	p.logger.Info("documents indexed",
		zap.Int("documents", len(docs)),
		zap.Int("new_edges", added))
	return added, nil
}

// Query runs the full retrieval path: hybrid fusion over the candidate pool,
// then the causal reranker with the hybrid scores as upstream signal. Always
// returns a (possibly empty) list, never an error.
func (p *Pipeline) Query(ctx context.Context, query string, topK int) []retrieval.RankedPassage {
	ranked := p.hybrid.Retrieve(ctx, query, topK)
	if len(ranked) == 0 {
		return nil
	}

	candidates := make([]string, len(ranked))
	upstream := make([]float64, len(ranked))
	for i, sp := range ranked {
		candidates[i] = sp.Passage
		upstream[i] = sp.Score
	}
	return p.reranker.Rerank(ctx, query, candidates, upstream)
}

// Retrieve runs hybrid retrieval without the final rerank pass.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int) []retrieval.ScoredPassage {
	return p.hybrid.Retrieve(ctx, query, topK)
}

// Explain renders the cached hybrid score breakdown of passage for query.
func (p *Pipeline) Explain(ctx context.Context, query, passage string) string {
	return p.hybrid.GetExplanation(ctx, query, passage)
}

// Statistics reports a read-only snapshot of the causal graph.
func (p *Pipeline) Statistics() causal.Statistics {
	return p.builder.ExtractionStatistics()
}

// Save persists the whole pipeline state into dir: graph.json for the graph
// aggregate and vector_cache/ for the vector index. An empty vector index is
// not an error; the subdirectory is simply absent.
func (p *Pipeline) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pipeline dir: %w", err)
	}
	if err := p.builder.Save(filepath.Join(dir, graphFile)); err != nil {
		return err
	}
	p.vectors.SaveIndex(filepath.Join(dir, vectorCacheDir))
	return nil
}

// Load restores pipeline state saved by Save. The BM25 corpus is rebuilt from
// the loaded passages and the query cache is invalidated. Returns false when
// either part fails to load; state may then be partially replaced and the
// caller should reindex from source.
func (p *Pipeline) Load(ctx context.Context, dir string) bool {
	graphOK := p.builder.Load(ctx, filepath.Join(dir, graphFile))
	vectorsOK := p.vectors.LoadIndex(filepath.Join(dir, vectorCacheDir))
	if vectorsOK {
		p.bm25.IndexDocuments(p.vectors.Passages())
	}
	p.hybrid.ClearCache(ctx)
	return graphOK && vectorsOK
}
