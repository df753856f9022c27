package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// BM25Config BM25 参数。
type BM25Config struct {
	K1 float64 `json:"k1" yaml:"k1"` // 词频饱和参数，常用 1.2-2.0
	B  float64 `json:"b" yaml:"b"`   // 文档长度归一化参数
}

// DefaultBM25Config 返回默认 BM25 参数。
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75}
}

// RankedPassage is one retrieval hit: the passage text, its score, and its
// 1-based rank in the result list.
type RankedPassage struct {
	Passage string  `json:"passage"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// BM25Retriever scores a static corpus with Okapi BM25. The corpus is set via
// IndexDocuments; Retrieve and Scores are read-only and may run concurrently
// with each other but not with IndexDocuments.
type BM25Retriever struct {
	cfg  BM25Config
	docs []string

	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64

	logger *zap.Logger
}

// NewBM25Retriever 创建 BM25 检索器。
func NewBM25Retriever(cfg BM25Config, logger *zap.Logger) *BM25Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.K1 <= 0 {
		cfg.K1 = 1.5
	}
	if cfg.B <= 0 {
		cfg.B = 0.75
	}
	return &BM25Retriever{
		cfg:    cfg,
		idf:    make(map[string]float64),
		logger: logger.With(zap.String("component", "bm25_retriever")),
	}
}

// IndexDocuments replaces the corpus and recomputes term statistics.
func (r *BM25Retriever) IndexDocuments(docs []string) {
	r.docs = docs
	r.termFreqs = make([]map[string]int, len(docs))
	r.docLens = make([]int, len(docs))
	r.idf = make(map[string]float64)

	totalLen := 0
	docCount := make(map[string]int)
	for i, doc := range docs {
		terms := tokenize(doc)
		r.docLens[i] = len(terms)
		totalLen += len(terms)

		freq := make(map[string]int, len(terms))
		for _, term := range terms {
			freq[term]++
		}
		r.termFreqs[i] = freq
		for term := range freq {
			docCount[term]++
		}
	}

	r.avgDocLen = 0
	if len(docs) > 0 {
		r.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	n := float64(len(docs))
	for term, df := range docCount {
		r.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}

	r.logger.Debug("bm25 corpus indexed",
		zap.Int("documents", len(docs)),
		zap.Float64("avg_doc_len", r.avgDocLen))
}

// Scores returns the raw BM25 score of every indexed document against query,
// aligned with the corpus order. Nil when the corpus or the query term set is
// empty.
func (r *BM25Retriever) Scores(query string) []float64 {
	queryTerms := tokenize(query)
	if len(r.docs) == 0 || len(queryTerms) == 0 {
		return nil
	}

	scores := make([]float64, len(r.docs))
	for i := range r.docs {
		docLen := float64(r.docLens[i])
		score := 0.0
		for _, term := range queryTerms {
			tf, ok := r.termFreqs[i][term]
			if !ok {
				continue
			}
			num := float64(tf) * (r.cfg.K1 + 1.0)
			den := float64(tf) + r.cfg.K1*(1.0-r.cfg.B+r.cfg.B*(docLen/r.avgDocLen))
			score += r.idf[term] * (num / den)
		}
		scores[i] = score
	}
	return scores
}

// Retrieve returns the topK documents ranked by BM25 score descending.
// Zero-scoring documents remain eligible and rank last; score ties keep the
// original corpus order. Empty corpus or a query with no tokens yields an
// empty result.
func (r *BM25Retriever) Retrieve(query string, topK int) []RankedPassage {
	scores := r.Scores(query)
	if scores == nil || topK <= 0 {
		return nil
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	out := make([]RankedPassage, topK)
	for rank, idx := range order[:topK] {
		out[rank] = RankedPassage{
			Passage: r.docs[idx],
			Score:   scores[idx],
			Rank:    rank + 1,
		}
	}
	return out
}
