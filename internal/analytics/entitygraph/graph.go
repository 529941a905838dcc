package entitygraph

import (
	"math"
	"sort"
)

type edgeKey struct{ a, b int }

// Graph is an undirected weighted co-occurrence graph. Nodes and edges keep
// insertion order so that ranking ties resolve deterministically.
type Graph struct {
	nodes   []string
	index   map[string]int
	edges   []edgeKey
	weights map[edgeKey]float64
}

func NewGraph() *Graph {
	return &Graph{index: map[string]int{}, weights: map[edgeKey]float64{}}
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

func (g *Graph) ensure(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	g.nodes = append(g.nodes, name)
	g.index[name] = len(g.nodes) - 1
	return len(g.nodes) - 1
}

func (g *Graph) AddNode(name string) { g.ensure(name) }

// AddEdge increments the undirected edge between a and b. Self-pairs are ignored.
func (g *Graph) AddEdge(a, b string, w float64) {
	ia, ib := g.ensure(a), g.ensure(b)
	if ia == ib {
		return
	}
	if ia > ib {
		ia, ib = ib, ia
	}
	k := edgeKey{ia, ib}
	if _, ok := g.weights[k]; !ok {
		g.edges = append(g.edges, k)
	}
	g.weights[k] += w
}

// Weight returns the weight between a and b in either direction.
func (g *Graph) Weight(a, b string) float64 {
	ia, ok1 := g.index[a]
	ib, ok2 := g.index[b]
	if !ok1 || !ok2 {
		return 0
	}
	if ia > ib {
		ia, ib = ib, ia
	}
	return g.weights[edgeKey{ia, ib}]
}

func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:   append([]string(nil), g.nodes...),
		index:   make(map[string]int, len(g.index)),
		edges:   append([]edgeKey(nil), g.edges...),
		weights: make(map[edgeKey]float64, len(g.weights)),
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	for k, v := range g.weights {
		c.weights[k] = v
	}
	return c
}

const (
	DefaultAlpha     = 0.85
	DefaultMaxIter   = 100
	DefaultTolerance = 1e-6
)

// PageRank runs weighted PageRank over the undirected graph. Dangling mass is
// spread uniformly. Scores sum to 1.
func (g *Graph) PageRank(alpha float64, maxIter int, tol float64) []float64 {
	n := len(g.nodes)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	type nb struct {
		j int
		w float64
	}
	adj := make([][]nb, n)
	for _, k := range g.edges {
		w := g.weights[k]
		adj[k.a] = append(adj[k.a], nb{k.b, w})
		adj[k.b] = append(adj[k.b], nb{k.a, w})
		out[k.a] += w
		out[k.b] += w
	}

	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}
	next := make([]float64, n)
	for iter := 0; iter < maxIter; iter++ {
		dangling := 0.0
		for i := 0; i < n; i++ {
			if out[i] == 0 {
				dangling += rank[i]
			}
		}
		base := (1-alpha)/float64(n) + alpha*dangling/float64(n)
		for i := range next {
			next[i] = base
		}
		for i := 0; i < n; i++ {
			if out[i] == 0 {
				continue
			}
			share := alpha * rank[i] / out[i]
			for _, e := range adj[i] {
				next[e.j] += share * e.w
			}
		}
		diff := 0.0
		for i := 0; i < n; i++ {
			diff += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if diff < float64(n)*tol {
			break
		}
	}
	return rank
}

type RankedNode struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type WeightedEdge struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Weight float64 `json:"weight"`
}

type Summary struct {
	Nodes    int            `json:"nodes"`
	Edges    int            `json:"edges"`
	TopNodes []RankedNode   `json:"top_nodes"`
	TopEdges []WeightedEdge `json:"top_edges"`
}

// Summarize ranks the graph and returns the top-k nodes and edges.
func (g *Graph) Summarize(topK int) Summary {
	s := Summary{Nodes: len(g.nodes), Edges: len(g.edges), TopNodes: []RankedNode{}, TopEdges: []WeightedEdge{}}
	if len(g.nodes) == 0 || topK <= 0 {
		return s
	}
	scores := g.PageRank(DefaultAlpha, DefaultMaxIter, DefaultTolerance)
	order := make([]int, len(g.nodes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
	for _, i := range order[:min(topK, len(order))] {
		s.TopNodes = append(s.TopNodes, RankedNode{Name: g.nodes[i], Score: scores[i]})
	}

	edges := append([]edgeKey(nil), g.edges...)
	sort.SliceStable(edges, func(i, j int) bool { return g.weights[edges[i]] > g.weights[edges[j]] })
	for _, k := range edges[:min(topK, len(edges))] {
		s.TopEdges = append(s.TopEdges, WeightedEdge{A: g.nodes[k.a], B: g.nodes[k.b], Weight: g.weights[k]})
	}
	return s
}
