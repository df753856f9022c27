package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/causalrag/causal"
	"github.com/BaSui01/causalrag/internal/metrics"
)

// HybridConfig 混合检索配置。三个权重在构造时按比例归一化为和为 1。
type HybridConfig struct {
	SemanticWeight float64 `json:"semantic_weight" yaml:"semantic_weight"`
	CausalWeight   float64 `json:"causal_weight" yaml:"causal_weight"`
	BM25Weight     float64 `json:"bm25_weight" yaml:"bm25_weight"`

	// RerankingFactor 候选池放大倍数：先取 topK*factor 个语义候选再融合。
	RerankingFactor int `json:"reranking_factor" yaml:"reranking_factor"`

	// MinCausalMatches 候选至少需命中的因果节点数，0 表示不过滤。
	// 仅当查询本身命中了因果节点时生效，避免非因果查询被清零。
	MinCausalMatches int `json:"min_causal_matches" yaml:"min_causal_matches"`

	// CacheSize 进程内查询缓存的条目上限。
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

// DefaultHybridConfig 返回默认混合检索配置。
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		SemanticWeight:   0.5,
		CausalWeight:     0.3,
		BM25Weight:       0.2,
		RerankingFactor:  2,
		MinCausalMatches: 0,
		CacheSize:        128,
	}
}

// PassageScoreDetails 单个候选的打分明细，用于解释输出。
type PassageScoreDetails struct {
	SemanticScore float64  `json:"semantic_score"`
	CausalScore   float64  `json:"causal_score"`
	BM25Score     float64  `json:"bm25_score"`
	MatchedNodes  []string `json:"matched_nodes,omitempty"`
	MatchedPairs  []string `json:"matched_pairs,omitempty"`
}

// ScoredPassage is one hybrid retrieval hit.
type ScoredPassage struct {
	Passage string              `json:"passage"`
	Score   float64             `json:"score"`
	Details PassageScoreDetails `json:"details"`
}

// HybridRetriever fuses semantic, causal-path and BM25 signals into one
// ranked passage list, with a bounded per-query result cache. A cache hit
// short-circuits retrieval entirely; callers must ClearCache after
// reindexing any underlying store.
type HybridRetriever struct {
	cfg      HybridConfig
	semantic *VectorStoreRetriever
	bm25     *BM25Retriever
	causal   *causal.PathRetriever

	cache   QueryCache
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewHybridRetriever 创建混合检索器。权重原始和 <= 0 时返回错误。
// bm25 与 causalRetriever 可为 nil，对应信号按 0 计。
func NewHybridRetriever(cfg HybridConfig, semantic *VectorStoreRetriever, bm25 *BM25Retriever, causalRetriever *causal.PathRetriever, logger *zap.Logger) (*HybridRetriever, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if semantic == nil {
		return nil, fmt.Errorf("hybrid retriever requires a semantic retriever")
	}

	sum := cfg.SemanticWeight + cfg.CausalWeight + cfg.BM25Weight
	if sum <= 0 {
		return nil, fmt.Errorf("hybrid weights sum to %v, must be positive", sum)
	}
	cfg.SemanticWeight /= sum
	cfg.CausalWeight /= sum
	cfg.BM25Weight /= sum

	if cfg.RerankingFactor <= 0 {
		cfg.RerankingFactor = 2
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}

	return &HybridRetriever{
		cfg:      cfg,
		semantic: semantic,
		bm25:     bm25,
		causal:   causalRetriever,
		cache:    NewLRUQueryCache(cfg.CacheSize),
		logger:   logger.With(zap.String("component", "hybrid_retriever")),
	}, nil
}

// Weights returns the normalized (semantic, causal, bm25) weights.
func (h *HybridRetriever) Weights() (semantic, causalW, bm25 float64) {
	return h.cfg.SemanticWeight, h.cfg.CausalWeight, h.cfg.BM25Weight
}

// SetQueryCache replaces the default in-process LRU cache, e.g. with a
// Redis-backed cache shared across instances.
func (h *HybridRetriever) SetQueryCache(cache QueryCache) {
	if cache != nil {
		h.cache = cache
	}
}

// SetMetrics installs an optional metrics collector.
func (h *HybridRetriever) SetMetrics(c *metrics.Collector) { h.metrics = c }

// ClearCache drops all cached query results. Must be called after any
// underlying index is rebuilt; cached entries carry no freshness check.
func (h *HybridRetriever) ClearCache(ctx context.Context) {
	h.cache.Clear(ctx)
}

// Retrieve returns the topK passages for query, ranked by fused score
// descending. The full sorted list is cached keyed by the raw query text
// before truncation, so later calls with a larger topK still hit the cache.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) []ScoredPassage {
	if topK <= 0 {
		return nil
	}
	start := time.Now()

	if cached, ok := h.cache.Get(ctx, query); ok {
		h.metrics.RecordCacheHit("query")
		if len(cached) > topK {
			cached = cached[:topK]
		}
		return cached
	}
	h.metrics.RecordCacheMiss("query")

	pool := h.semantic.SearchWithScores(ctx, query, topK*h.cfg.RerankingFactor, 0)
	if len(pool) == 0 {
		return nil
	}

	bm25Scores := h.bm25ScoresFor(query, pool)
	nodeTexts, paths := h.causalSignals(ctx, query)

	ranked := make([]ScoredPassage, 0, len(pool))
	for i, hit := range pool {
		details := scorePassageDetails(hit.Passage, hit.Score, bm25Scores[i], nodeTexts, paths)
		if len(nodeTexts) > 0 && h.cfg.MinCausalMatches > 0 && len(details.MatchedNodes) < h.cfg.MinCausalMatches {
			continue
		}
		score := h.cfg.SemanticWeight*details.SemanticScore +
			h.cfg.CausalWeight*details.CausalScore +
			h.cfg.BM25Weight*details.BM25Score
		ranked = append(ranked, ScoredPassage{Passage: hit.Passage, Score: score, Details: details})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	h.cache.Put(ctx, query, ranked)
	h.metrics.ObserveRetrieval("hybrid", time.Since(start).Seconds())
	h.logger.Debug("hybrid retrieval",
		zap.String("query", query),
		zap.Int("pool", len(pool)),
		zap.Int("ranked", len(ranked)),
		zap.Int("causal_nodes", len(nodeTexts)))

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// GetExplanation renders the cached score breakdown of passage for query.
// The lookup is an exact match on the raw query text; without a cached entry
// a generic fallback string is returned.
func (h *HybridRetriever) GetExplanation(ctx context.Context, query, passage string) string {
	cached, ok := h.cache.Get(ctx, query)
	if !ok {
		return fmt.Sprintf("no cached retrieval for query %q; run Retrieve first", query)
	}
	for _, sp := range cached {
		if sp.Passage != passage {
			continue
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "score %.4f = semantic %.4f x %.2f + causal %.4f x %.2f + bm25 %.4f x %.2f",
			sp.Score,
			sp.Details.SemanticScore, h.cfg.SemanticWeight,
			sp.Details.CausalScore, h.cfg.CausalWeight,
			sp.Details.BM25Score, h.cfg.BM25Weight)
		if len(sp.Details.MatchedNodes) > 0 {
			fmt.Fprintf(&sb, "; matched nodes: %s", strings.Join(sp.Details.MatchedNodes, ", "))
		}
		if len(sp.Details.MatchedPairs) > 0 {
			fmt.Fprintf(&sb, "; matched causal pairs: %s", strings.Join(sp.Details.MatchedPairs, ", "))
		}
		return sb.String()
	}
	return fmt.Sprintf("passage not present in cached results for query %q", query)
}

// bm25ScoresFor returns min-max normalized BM25 scores aligned with the pool.
func (h *HybridRetriever) bm25ScoresFor(query string, pool []SearchResult) []float64 {
	out := make([]float64, len(pool))
	if h.cfg.BM25Weight <= 0 || h.bm25 == nil {
		return out
	}

	raw := h.bm25.Scores(query)
	if raw == nil {
		return out
	}
	byDoc := make(map[string]float64, len(raw))
	docs := h.bm25.docs
	for i, score := range raw {
		byDoc[docs[i]] = score
	}
	for i, hit := range pool {
		out[i] = byDoc[hit.Passage]
	}
	return normalizeScores(out)
}

func (h *HybridRetriever) causalSignals(ctx context.Context, query string) (nodeTexts []string, paths [][]string) {
	if h.causal == nil {
		return nil, nil
	}
	pcfg := h.causal.Config()
	ids := h.causal.RetrievePathNodes(ctx, query, pcfg.SeedTopK, pcfg.SeedMaxHops, pcfg.IncludeSimilar)
	for _, id := range ids {
		if text, ok := h.causal.NodeText(id); ok {
			nodeTexts = append(nodeTexts, text)
		}
	}
	sort.Strings(nodeTexts)
	paths = h.causal.RetrievePaths(ctx, query, pcfg.MaxPaths, pcfg.MinPathLength, pcfg.MaxPathLength)
	return nodeTexts, paths
}

// scorePassageDetails computes the causal sub-score of one passage:
// 0.7 * node match ratio + 0.3 * path match ratio. A cause→effect pair only
// counts as matched when both texts appear and the cause's first occurrence
// precedes the effect's; passages that state the effect before the cause are
// deliberately under-credited by this heuristic.
func scorePassageDetails(passage string, semantic, bm25 float64, nodeTexts []string, paths [][]string) PassageScoreDetails {
	details := PassageScoreDetails{
		SemanticScore: semantic,
		BM25Score:     bm25,
	}
	lower := strings.ToLower(passage)

	nodeRatio := 0.0
	if len(nodeTexts) > 0 {
		for _, node := range nodeTexts {
			if strings.Contains(lower, strings.ToLower(node)) {
				details.MatchedNodes = append(details.MatchedNodes, node)
			}
		}
		nodeRatio = float64(len(details.MatchedNodes)) / float64(len(nodeTexts))
	}

	pathRatio := 0.0
	totalPairs := 0
	matchedPairs := 0
	for _, path := range paths {
		for i := 0; i+1 < len(path); i++ {
			totalPairs++
			causeIdx := strings.Index(lower, strings.ToLower(path[i]))
			effectIdx := strings.Index(lower, strings.ToLower(path[i+1]))
			if causeIdx >= 0 && effectIdx >= 0 && causeIdx < effectIdx {
				matchedPairs++
				details.MatchedPairs = append(details.MatchedPairs, path[i]+" -> "+path[i+1])
			}
		}
	}
	if totalPairs > 0 {
		pathRatio = float64(matchedPairs) / float64(totalPairs)
	}

	details.CausalScore = 0.7*nodeRatio + 0.3*pathRatio
	return details
}

// normalizeScores min-max normalizes in place and returns the slice. A zero
// range maps every score to 1.
func normalizeScores(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore == minScore {
		for i := range scores {
			scores[i] = 1.0
		}
		return scores
	}
	for i := range scores {
		scores[i] = (scores[i] - minScore) / (maxScore - minScore)
	}
	return scores
}
