package causal

import (
	"sort"

	"github.com/BaSui01/causalrag/graph"
)

// NodeDegree pairs a node with its combined in/out degree.
type NodeDegree struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	InDegree  int    `json:"in_degree"`
	OutDegree int    `json:"out_degree"`
}

// Statistics is a derived, read-only snapshot of the current graph state.
type Statistics struct {
	Nodes      int          `json:"nodes"`
	Edges      int          `json:"edges"`
	Variants   int          `json:"variants"`
	Density    float64      `json:"density"`
	IsDAG      bool         `json:"is_dag"`
	HasCycle   bool         `json:"has_cycle"`
	Components int          `json:"components"`
	TopEdges   []graph.Edge `json:"top_edges"`
	TopNodes   []NodeDegree `json:"top_nodes"`
}

const statisticsTopN = 5

// ExtractionStatistics reports counts, density, DAG/cycle flags, component
// count, the top-weighted edges and the most-connected nodes. It is a pure
// function of the graph state and mutates nothing.
func (b *Builder) ExtractionStatistics() Statistics {
	b.mu.RLock()
	variants := 0
	for _, vs := range b.nodeVariants {
		variants += len(vs)
	}
	b.mu.RUnlock()

	g := b.graph
	nodes := g.NumberOfNodes()
	edges := g.NumberOfEdges()

	density := 0.0
	if nodes > 1 {
		density = float64(edges) / float64(nodes*(nodes-1))
	}

	hasCycle := g.HasCycle()

	stats := Statistics{
		Nodes:      nodes,
		Edges:      edges,
		Variants:   variants,
		Density:    density,
		IsDAG:      !hasCycle,
		HasCycle:   hasCycle,
		Components: len(g.WeaklyConnectedComponents()),
		TopEdges:   topEdges(g, statisticsTopN),
		TopNodes:   b.topNodes(statisticsTopN),
	}
	return stats
}

func topEdges(g *graph.DirectedGraph, n int) []graph.Edge {
	edges := g.Edges()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	if len(edges) > n {
		edges = edges[:n]
	}
	return edges
}

func (b *Builder) topNodes(n int) []NodeDegree {
	g := b.graph
	ids := g.Nodes()

	degrees := make([]NodeDegree, 0, len(ids))
	b.mu.RLock()
	for _, id := range ids {
		degrees = append(degrees, NodeDegree{
			ID:        id,
			Text:      b.nodeText[id],
			InDegree:  g.InDegree(id),
			OutDegree: g.OutDegree(id),
		})
	}
	b.mu.RUnlock()

	sort.Slice(degrees, func(i, j int) bool {
		di := degrees[i].InDegree + degrees[i].OutDegree
		dj := degrees[j].InDegree + degrees[j].OutDegree
		if di != dj {
			return di > dj
		}
		return degrees[i].ID < degrees[j].ID
	})
	if len(degrees) > n {
		degrees = degrees[:n]
	}
	return degrees
}
