package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 管线指标收集器。nil *Collector 上的所有方法均为 no-op，
// 因此组件无需判空即可上报。
type Collector struct {
	triplesExtracted  *prometheus.CounterVec
	triplesDiscarded  prometheus.Counter
	nodesCreated      prometheus.Counter
	nodeVariants      prometheus.Counter
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		triplesExtracted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triples_extracted_total",
				Help:      "Total number of causal triples committed to the graph",
			},
			[]string{"method"},
		),
		triplesDiscarded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triples_discarded_total",
				Help:      "Total number of triples dropped below the confidence threshold",
			},
		),
		nodesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_nodes_created_total",
				Help:      "Total number of graph nodes created",
			},
		),
		nodeVariants: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_node_variants_total",
				Help:      "Total number of surface forms folded into existing nodes",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
		retrievalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_duration_seconds",
				Help:      "Retrieval latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"retriever"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// RecordTriples 记录提交入图的三元组数量。
func (c *Collector) RecordTriples(method string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.triplesExtracted.WithLabelValues(method).Add(float64(n))
}

// RecordDiscardedTriples 记录因置信度不足被丢弃的三元组数量。
func (c *Collector) RecordDiscardedTriples(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.triplesDiscarded.Add(float64(n))
}

// RecordNodeCreated 记录新建节点。
func (c *Collector) RecordNodeCreated() {
	if c == nil {
		return
	}
	c.nodesCreated.Inc()
}

// RecordNodeVariant 记录被折叠进既有节点的变体。
func (c *Collector) RecordNodeVariant() {
	if c == nil {
		return
	}
	c.nodeVariants.Inc()
}

// RecordCacheHit 记录缓存命中。
func (c *Collector) RecordCacheHit(cache string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中。
func (c *Collector) RecordCacheMiss(cache string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// ObserveRetrieval 记录一次检索耗时（秒）。
func (c *Collector) ObserveRetrieval(retriever string, seconds float64) {
	if c == nil {
		return
	}
	c.retrievalDuration.WithLabelValues(retriever).Observe(seconds)
}
