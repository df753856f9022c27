package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/causalrag/causal"
	"github.com/BaSui01/causalrag/internal/metrics"
)

// RerankerConfig 因果重排配置。
type RerankerConfig struct {
	NodeMatchWeight     float64 `json:"node_match_weight" yaml:"node_match_weight"`
	PathMatchWeight     float64 `json:"path_match_weight" yaml:"path_match_weight"`
	SemanticMatchWeight float64 `json:"semantic_match_weight" yaml:"semantic_match_weight"`

	// MinNodeLength 参与子串匹配的节点文本最小长度，过滤 "it" 一类噪声节点。
	MinNodeLength int `json:"min_node_length" yaml:"min_node_length"`

	// FlatScore 查询未命中任何因果节点时所有候选的统一分数。
	FlatScore float64 `json:"flat_score" yaml:"flat_score"`
}

// DefaultRerankerConfig 返回默认重排配置。
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{
		NodeMatchWeight:     1.0,
		PathMatchWeight:     2.0,
		SemanticMatchWeight: 0.5,
		MinNodeLength:       3,
		FlatScore:           0.1,
	}
}

const (
	orderedPairCredit   = 1.5
	unorderedPairCredit = 0.5
	normalizeEpsilon    = 1e-9
)

// CausalPathReranker reorders a candidate passage list by causal node and
// path overlap, blended with an optional upstream semantic score. Raw scores
// are min-max normalized across the batch into [0,1].
type CausalPathReranker struct {
	cfg     RerankerConfig
	causal  *causal.PathRetriever
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewCausalPathReranker 创建因果重排器。
func NewCausalPathReranker(cfg RerankerConfig, causalRetriever *causal.PathRetriever, logger *zap.Logger) *CausalPathReranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultRerankerConfig()
	if cfg.NodeMatchWeight <= 0 {
		cfg.NodeMatchWeight = def.NodeMatchWeight
	}
	if cfg.PathMatchWeight <= 0 {
		cfg.PathMatchWeight = def.PathMatchWeight
	}
	if cfg.SemanticMatchWeight <= 0 {
		cfg.SemanticMatchWeight = def.SemanticMatchWeight
	}
	if cfg.MinNodeLength <= 0 {
		cfg.MinNodeLength = def.MinNodeLength
	}
	if cfg.FlatScore <= 0 {
		cfg.FlatScore = def.FlatScore
	}
	return &CausalPathReranker{
		cfg:    cfg,
		causal: causalRetriever,
		logger: logger.With(zap.String("component", "causal_path_reranker")),
	}
}

// SetMetrics installs an optional metrics collector.
func (r *CausalPathReranker) SetMetrics(c *metrics.Collector) { r.metrics = c }

// Rerank reorders candidates by causal overlap with the query's graph
// neighborhood. semanticScores, when non-nil, must align with candidates and
// supplies the upstream score per candidate; nil means 0 for all. When the
// query matches no causal nodes every candidate gets the flat fallback score
// in its original order. Otherwise raw weighted scores are min-max normalized
// into [0,1] and sorted descending; score ties keep candidate order.
func (r *CausalPathReranker) Rerank(ctx context.Context, query string, candidates []string, semanticScores []float64) []RankedPassage {
	if len(candidates) == 0 {
		return nil
	}
	start := time.Now()

	nodeTexts, paths := r.querySignals(ctx, query)
	if len(nodeTexts) == 0 {
		out := make([]RankedPassage, len(candidates))
		for i, c := range candidates {
			out[i] = RankedPassage{Passage: c, Score: r.cfg.FlatScore, Rank: i + 1}
		}
		return out
	}

	raw := make([]float64, len(candidates))
	for i, candidate := range candidates {
		semantic := 0.0
		if semanticScores != nil && i < len(semanticScores) {
			semantic = semanticScores[i]
		}
		raw[i] = r.cfg.NodeMatchWeight*nodeScore(candidate, nodeTexts) +
			r.cfg.PathMatchWeight*pathScore(candidate, paths) +
			r.cfg.SemanticMatchWeight*semantic
	}

	minRaw, maxRaw := raw[0], raw[0]
	for _, s := range raw[1:] {
		if s < minRaw {
			minRaw = s
		}
		if s > maxRaw {
			maxRaw = s
		}
	}
	span := maxRaw - minRaw
	if span < normalizeEpsilon {
		span = normalizeEpsilon
	}

	out := make([]RankedPassage, len(candidates))
	for i, c := range candidates {
		out[i] = RankedPassage{Passage: c, Score: (raw[i] - minRaw) / span}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	for i := range out {
		out[i].Rank = i + 1
	}

	r.metrics.ObserveRetrieval("reranker", time.Since(start).Seconds())
	return out
}

// querySignals fetches the query's causal node texts and paths once per
// rerank call, with the retriever's configured seed parameters. Node texts
// shorter than MinNodeLength are dropped before matching.
func (r *CausalPathReranker) querySignals(ctx context.Context, query string) ([]string, [][]string) {
	if r.causal == nil {
		return nil, nil
	}
	pcfg := r.causal.Config()
	ids := r.causal.RetrievePathNodes(ctx, query, pcfg.SeedTopK, pcfg.SeedMaxHops, pcfg.IncludeSimilar)

	var nodeTexts []string
	for _, id := range ids {
		text, ok := r.causal.NodeText(id)
		if !ok || len(text) < r.cfg.MinNodeLength {
			continue
		}
		nodeTexts = append(nodeTexts, text)
	}
	sort.Strings(nodeTexts)

	paths := r.causal.RetrievePaths(ctx, query, pcfg.MaxPaths, pcfg.MinPathLength, pcfg.MaxPathLength)
	return nodeTexts, paths
}

// nodeScore is the fraction of causal node texts found as case-insensitive
// substrings of the candidate.
func nodeScore(candidate string, nodeTexts []string) float64 {
	if len(nodeTexts) == 0 {
		return 0
	}
	lower := strings.ToLower(candidate)
	matched := 0
	for _, node := range nodeTexts {
		if strings.Contains(lower, strings.ToLower(node)) {
			matched++
		}
	}
	return float64(matched) / float64(len(nodeTexts))
}

// pathScore averages per-path pair credit: an adjacent cause→effect pair
// earns full credit when both texts appear with the cause first, partial
// credit when both appear out of order, and nothing otherwise.
func pathScore(candidate string, paths [][]string) float64 {
	if len(paths) == 0 {
		return 0
	}
	lower := strings.ToLower(candidate)

	total := 0.0
	scoredPaths := 0
	for _, path := range paths {
		pairs := len(path) - 1
		if pairs <= 0 {
			continue
		}
		credit := 0.0
		for i := 0; i+1 < len(path); i++ {
			causeIdx := strings.Index(lower, strings.ToLower(path[i]))
			effectIdx := strings.Index(lower, strings.ToLower(path[i+1]))
			switch {
			case causeIdx >= 0 && effectIdx >= 0 && causeIdx < effectIdx:
				credit += orderedPairCredit
			case causeIdx >= 0 && effectIdx >= 0:
				credit += unorderedPairCredit
			}
		}
		total += credit / float64(pairs)
		scoredPaths++
	}
	if scoredPaths == 0 {
		return 0
	}
	return total / float64(scoredPaths)
}
