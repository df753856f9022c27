package graph

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Edge 表示一条有向加权边。
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// DirectedGraph 基于邻接表的有向加权图。
// 节点由字符串 ID 标识，边权重由最后一次 AddEdge 调用决定（last-write-wins）。
// 读操作可并发执行，写操作由内部 RWMutex 串行化。
type DirectedGraph struct {
	mu     sync.RWMutex
	succ   map[string]map[string]float64 // from -> to -> weight
	pred   map[string]map[string]float64 // to -> from -> weight
	logger *zap.Logger
}

// New 创建空图。
func New(logger *zap.Logger) *DirectedGraph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectedGraph{
		succ:   make(map[string]map[string]float64),
		pred:   make(map[string]map[string]float64),
		logger: logger.With(zap.String("component", "directed_graph")),
	}
}

// AddNode registers a node with empty adjacency. Adding an existing node is a no-op.
func (g *DirectedGraph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureNode(id)
}

func (g *DirectedGraph) ensureNode(id string) {
	if _, ok := g.succ[id]; !ok {
		g.succ[id] = make(map[string]float64)
	}
	if _, ok := g.pred[id]; !ok {
		g.pred[id] = make(map[string]float64)
	}
}

// AddEdge inserts or overwrites the edge (from, to). Both endpoints are
// registered as nodes if missing. Self-loops are permitted.
func (g *DirectedGraph) AddEdge(from, to string, weight float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureNode(from)
	g.ensureNode(to)
	g.succ[from][to] = weight
	g.pred[to][from] = weight
}

// HasNode reports whether id is registered.
func (g *DirectedGraph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.succ[id]
	return ok
}

// HasEdge reports whether the directed edge (from, to) exists.
func (g *DirectedGraph) HasEdge(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.succ[from][to]
	return ok
}

// EdgeWeight returns the weight of (from, to) and whether the edge exists.
func (g *DirectedGraph) EdgeWeight(from, to string) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.succ[from][to]
	return w, ok
}

// Successors returns the immediate out-neighbors of id. Order is unspecified.
func (g *DirectedGraph) Successors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.succ[id]))
	for to := range g.succ[id] {
		out = append(out, to)
	}
	return out
}

// Predecessors returns the immediate in-neighbors of id. Order is unspecified.
func (g *DirectedGraph) Predecessors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.pred[id]))
	for from := range g.pred[id] {
		out = append(out, from)
	}
	return out
}

// OutDegree returns the number of outgoing edges of id.
func (g *DirectedGraph) OutDegree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.succ[id])
}

// InDegree returns the number of incoming edges of id.
func (g *DirectedGraph) InDegree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.pred[id])
}

// Nodes returns all node IDs. Order is unspecified.
func (g *DirectedGraph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.succ))
	for id := range g.succ {
		out = append(out, id)
	}
	return out
}

// Edges returns all edges. Order is unspecified.
func (g *DirectedGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for from, tos := range g.succ {
		for to, w := range tos {
			out = append(out, Edge{From: from, To: to, Weight: w})
		}
	}
	return out
}

// NumberOfNodes returns the node count. O(1).
func (g *DirectedGraph) NumberOfNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.succ)
}

// NumberOfEdges returns the edge count. O(V).
func (g *DirectedGraph) NumberOfEdges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, tos := range g.succ {
		n += len(tos)
	}
	return n
}

// HasCycle reports whether the graph contains a directed cycle.
// Runs an iterative three-color DFS over every component, so it is safe on
// arbitrarily long chains where a recursive walk would exhaust the stack.
func (g *DirectedGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.succ))

	type frame struct {
		node  string
		enter bool
	}

	for start := range g.succ {
		if color[start] != white {
			continue
		}
		stack := []frame{{node: start, enter: true}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !f.enter {
				color[f.node] = black
				continue
			}
			if color[f.node] == gray {
				continue
			}
			color[f.node] = gray
			stack = append(stack, frame{node: f.node, enter: false})
			for next := range g.succ[f.node] {
				switch color[next] {
				case gray:
					return true
				case white:
					stack = append(stack, frame{node: next, enter: true})
				}
			}
		}
	}
	return false
}

// IsDAG reports whether the graph is acyclic.
func (g *DirectedGraph) IsDAG() bool {
	return !g.HasCycle()
}

// WeaklyConnectedComponents groups nodes into components, treating every edge
// as undirected. Each component is returned as a list of node IDs.
func (g *DirectedGraph) WeaklyConnectedComponents() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool, len(g.succ))
	var components [][]string

	for start := range g.succ {
		if visited[start] {
			continue
		}
		var component []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			component = append(component, node)
			for next := range g.succ[node] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
			for prev := range g.pred[node] {
				if !visited[prev] {
					visited[prev] = true
					queue = append(queue, prev)
				}
			}
		}
		components = append(components, component)
	}
	return components
}

// Subgraph returns a new graph containing only edges whose both endpoints are
// in nodeSet. Nodes of nodeSet that end up isolated are dropped.
func (g *DirectedGraph) Subgraph(nodeSet map[string]bool) *DirectedGraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sub := New(g.logger)
	for from, tos := range g.succ {
		if !nodeSet[from] {
			continue
		}
		for to, w := range tos {
			if nodeSet[to] {
				sub.AddEdge(from, to, w)
			}
		}
	}
	return sub
}

// FindPaths enumerates simple paths from start to end with at most maxDepth
// edges, stopping once limit paths are collected. Each returned path includes
// both start and end. A node may not repeat within one path but may appear in
// several paths. Neighbor expansion is sorted for reproducible output; no
// weight-based ranking is applied.
func (g *DirectedGraph) FindPaths(start, end string, maxDepth, limit int) [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if maxDepth <= 0 || limit <= 0 || start == end {
		return nil
	}
	if _, ok := g.succ[start]; !ok {
		return nil
	}
	if _, ok := g.succ[end]; !ok {
		return nil
	}

	var paths [][]string

	// Explicit DFS stack: each frame carries its own path copy so that
	// backtracking across branches needs no shared visited bookkeeping.
	type frame struct {
		node string
		path []string
	}
	stack := []frame{{node: start, path: []string{start}}}

	for len(stack) > 0 && len(paths) < limit {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.node == end {
			paths = append(paths, f.path)
			continue
		}
		if len(f.path)-1 >= maxDepth {
			continue
		}

		next := make([]string, 0, len(g.succ[f.node]))
		for to := range g.succ[f.node] {
			next = append(next, to)
		}
		sort.Strings(next)
		// Reverse push so the lexicographically smallest branch pops first.
		for i := len(next) - 1; i >= 0; i-- {
			to := next[i]
			if containsNode(f.path, to) {
				continue
			}
			path := make([]string, len(f.path), len(f.path)+1)
			copy(path, f.path)
			stack = append(stack, frame{node: to, path: append(path, to)})
		}
	}

	return paths
}

func containsNode(path []string, node string) bool {
	for _, p := range path {
		if p == node {
			return true
		}
	}
	return false
}
