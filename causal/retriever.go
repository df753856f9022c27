package causal

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/causalrag/embedding"
)

// PathConfig 路径检索配置。字段为各操作的默认参数。
type PathConfig struct {
	// NodeThreshold 查询-节点相似度下限。
	NodeThreshold float64 `json:"node_threshold" yaml:"node_threshold"`

	// SeedTopK / SeedMaxHops 路径枚举使用的种子节点数与扩展跳数。
	SeedTopK    int `json:"seed_top_k" yaml:"seed_top_k"`
	SeedMaxHops int `json:"seed_max_hops" yaml:"seed_max_hops"`

	// IncludeSimilar 扩展时是否纳入与种子均值嵌入相似的节点。
	IncludeSimilar bool `json:"include_similar" yaml:"include_similar"`

	// SimilarThreshold 纳入相似节点的余弦阈值。
	SimilarThreshold float64 `json:"similar_threshold" yaml:"similar_threshold"`

	// MaxPaths / MinPathLength / MaxPathLength 路径枚举默认参数。
	// MinPathLength 以节点数计，MaxPathLength 以边数计。
	MaxPaths      int `json:"max_paths" yaml:"max_paths"`
	MinPathLength int `json:"min_path_length" yaml:"min_path_length"`
	MaxPathLength int `json:"max_path_length" yaml:"max_path_length"`

	// CandidateCapFactor 限制候选路径总量为 factor*maxPaths，避免稠密图组合爆炸。
	CandidateCapFactor int `json:"candidate_cap_factor" yaml:"candidate_cap_factor"`
}

// DefaultPathConfig 返回默认路径检索配置。
func DefaultPathConfig() PathConfig {
	return PathConfig{
		NodeThreshold:      0.5,
		SeedTopK:           5,
		SeedMaxHops:        1,
		IncludeSimilar:     false,
		SimilarThreshold:   0.8,
		MaxPaths:           10,
		MinPathLength:      2,
		MaxPathLength:      4,
		CandidateCapFactor: 3,
	}
}

// ScoredNode is a graph node matched against a query.
type ScoredNode struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// PathRetriever answers queries against the causal graph: node matching by
// embedding similarity, k-hop expansion around seed nodes, and bounded
// multi-path enumeration between relevant node pairs.
//
// Reads are safe to run concurrently with each other but not with builder
// writes.
type PathRetriever struct {
	builder *Builder
	cfg     PathConfig
	logger  *zap.Logger
}

// NewPathRetriever 创建路径检索器。
func NewPathRetriever(builder *Builder, cfg PathConfig, logger *zap.Logger) *PathRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultPathConfig()
	if cfg.NodeThreshold <= 0 {
		cfg.NodeThreshold = def.NodeThreshold
	}
	if cfg.SeedTopK <= 0 {
		cfg.SeedTopK = def.SeedTopK
	}
	if cfg.SeedMaxHops <= 0 {
		cfg.SeedMaxHops = def.SeedMaxHops
	}
	if cfg.SimilarThreshold <= 0 {
		cfg.SimilarThreshold = def.SimilarThreshold
	}
	if cfg.MaxPaths <= 0 {
		cfg.MaxPaths = def.MaxPaths
	}
	if cfg.MinPathLength <= 0 {
		cfg.MinPathLength = def.MinPathLength
	}
	if cfg.MaxPathLength <= 0 {
		cfg.MaxPathLength = def.MaxPathLength
	}
	if cfg.CandidateCapFactor <= 0 {
		cfg.CandidateCapFactor = def.CandidateCapFactor
	}
	return &PathRetriever{
		builder: builder,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "causal_path_retriever")),
	}
}

// Config returns the retriever's effective configuration.
func (r *PathRetriever) Config() PathConfig { return r.cfg }

// NodeText resolves a node id to its display text.
func (r *PathRetriever) NodeText(id string) (string, bool) {
	return r.builder.NodeText(id)
}

// RetrieveNodes returns up to topK nodes whose embedding similarity to the
// query is at least threshold, ordered by similarity descending. Equal
// similarities sort in arbitrary order; no stable secondary key is applied.
// An encoder failure degrades to an empty result with a logged warning.
func (r *PathRetriever) RetrieveNodes(ctx context.Context, query string, topK int, threshold float64) []ScoredNode {
	if r.builder.embedder == nil || topK <= 0 {
		return nil
	}
	queryVec, err := r.builder.embedder.Encode(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed", zap.Error(err))
		return nil
	}

	b := r.builder
	b.mu.RLock()
	matches := make([]ScoredNode, 0, len(b.nodeEmbeddings))
	for id, vec := range b.nodeEmbeddings {
		sim := embedding.Cosine(queryVec, vec)
		if sim >= threshold {
			matches = append(matches, ScoredNode{ID: id, Text: b.nodeText[id], Score: sim})
		}
	}
	b.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// RetrievePathNodes returns the unordered union of the query's seed nodes,
// every ancestor/descendant within maxHops of a seed, and (optionally) every
// node whose embedding is close to the average embedding of the seed set.
func (r *PathRetriever) RetrievePathNodes(ctx context.Context, query string, topK, maxHops int, includeSimilar bool) []string {
	seeds := r.RetrieveNodes(ctx, query, topK, r.cfg.NodeThreshold)
	if len(seeds) == 0 {
		return nil
	}

	g := r.builder.Graph()
	included := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		included[seed.ID] = true
		// Forward and backward hop-bounded BFS; a node reachable along
		// several hop counts is included once.
		for _, forward := range []bool{true, false} {
			frontier := []string{seed.ID}
			visited := map[string]bool{seed.ID: true}
			for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
				var next []string
				for _, id := range frontier {
					var neighbors []string
					if forward {
						neighbors = g.Successors(id)
					} else {
						neighbors = g.Predecessors(id)
					}
					for _, n := range neighbors {
						if visited[n] {
							continue
						}
						visited[n] = true
						included[n] = true
						next = append(next, n)
					}
				}
				frontier = next
			}
		}
	}

	if includeSimilar {
		r.addSimilarToSeedMean(seeds, included)
	}

	out := make([]string, 0, len(included))
	for id := range included {
		out = append(out, id)
	}
	return out
}

func (r *PathRetriever) addSimilarToSeedMean(seeds []ScoredNode, included map[string]bool) {
	b := r.builder
	b.mu.RLock()
	defer b.mu.RUnlock()

	vecs := make([][]float64, 0, len(seeds))
	for _, seed := range seeds {
		if vec, ok := b.nodeEmbeddings[seed.ID]; ok {
			vecs = append(vecs, vec)
		}
	}
	mean := embedding.Mean(vecs)
	if mean == nil {
		return
	}
	for id, vec := range b.nodeEmbeddings {
		if included[id] {
			continue
		}
		if embedding.Cosine(mean, vec) > r.cfg.SimilarThreshold {
			included[id] = true
		}
	}
}

// RetrievePaths enumerates causal paths relevant to the query. Relevant nodes
// come from RetrievePathNodes with the configured seed parameters; for every
// unordered pair both directions are attempted via bounded DFS. Candidates
// shorter than minPathLength nodes are dropped, the survivors are sorted by
// length ascending (shortest chains are assumed the most directly
// explanatory; edge confidence deliberately does not participate) and
// truncated to maxPaths. maxPathLength bounds the edge count per path.
// Returned paths carry node display text, not ids.
func (r *PathRetriever) RetrievePaths(ctx context.Context, query string, maxPaths, minPathLength, maxPathLength int) [][]string {
	if maxPaths <= 0 {
		maxPaths = r.cfg.MaxPaths
	}
	if minPathLength <= 0 {
		minPathLength = r.cfg.MinPathLength
	}
	if maxPathLength <= 0 {
		maxPathLength = r.cfg.MaxPathLength
	}

	relevant := r.RetrievePathNodes(ctx, query, r.cfg.SeedTopK, r.cfg.SeedMaxHops, r.cfg.IncludeSimilar)
	if len(relevant) < 2 {
		return nil
	}
	sort.Strings(relevant) // deterministic pair order

	// Candidate cap bounds the total work on dense graphs.
	candidateCap := r.cfg.CandidateCapFactor * maxPaths
	g := r.builder.Graph()

	var candidates [][]string
	for i := 0; i < len(relevant) && len(candidates) < candidateCap; i++ {
		for j := i + 1; j < len(relevant) && len(candidates) < candidateCap; j++ {
			for _, pair := range [][2]string{{relevant[i], relevant[j]}, {relevant[j], relevant[i]}} {
				remaining := candidateCap - len(candidates)
				if remaining <= 0 {
					break
				}
				for _, path := range g.FindPaths(pair[0], pair[1], maxPathLength, remaining) {
					if len(path) >= minPathLength {
						candidates = append(candidates, path)
					}
				}
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) < len(candidates[j])
	})
	if len(candidates) > maxPaths {
		candidates = candidates[:maxPaths]
	}

	out := make([][]string, len(candidates))
	for i, path := range candidates {
		texts := make([]string, len(path))
		for j, id := range path {
			if text, ok := r.builder.NodeText(id); ok {
				texts[j] = text
			} else {
				texts[j] = id
			}
		}
		out[i] = texts
	}

	r.logger.Debug("causal paths retrieved",
		zap.String("query", query),
		zap.Int("relevant_nodes", len(relevant)),
		zap.Int("paths", len(out)))
	return out
}
