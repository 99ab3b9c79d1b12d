// Package callgraph loads whole-program call graphs extracted from compiled
// artifacts into an arena of integer-indexed nodes.
package callgraph

import "sort"

// Node is one function of the compiled program.
type Node struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	// Normalized is the label after symbol normalisation, filled by matching.
	Normalized string `json:"normalized,omitempty"`
	// Candidates are the source-level paths this node was matched to.
	Candidates []string `json:"candidates,omitempty"`
}

// Graph is a directed call graph. Edges point from caller to callee and
// are deduplicated; cycles and isolated nodes are allowed.
type Graph struct {
	nodes   []*Node
	byLabel map[string]int
	out     [][]int
	in      [][]int
	edges   int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{byLabel: make(map[string]int)}
}

// AddNode returns the id of the node with label, creating it if needed.
func (g *Graph) AddNode(label string) int {
	if id, ok := g.byLabel[label]; ok {
		return id
	}
	id := len(g.nodes)
	g.nodes = append(g.nodes, &Node{ID: id, Label: label})
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.byLabel[label] = id
	return id
}

// AddEdge adds the edge caller -> callee and reports whether it was new.
func (g *Graph) AddEdge(caller, callee int) bool {
	var added bool
	g.out[caller], added = insertSorted(g.out[caller], callee)
	if !added {
		return false
	}
	g.in[callee], _ = insertSorted(g.in[callee], caller)
	g.edges++
	return true
}

func insertSorted(list []int, v int) ([]int, bool) {
	i := sort.SearchInts(list, v)
	if i < len(list) && list[i] == v {
		return list, false
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = v
	return list, true
}

// Lookup returns the id of the node with the exact label.
func (g *Graph) Lookup(label string) (int, bool) {
	id, ok := g.byLabel[label]
	return id, ok
}

// Node returns the node with id.
func (g *Graph) Node(id int) *Node {
	return g.nodes[id]
}

// Nodes returns all nodes in id order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// Callers returns the ids of nodes with an edge to id, sorted.
func (g *Graph) Callers(id int) []int {
	return g.in[id]
}

// Callees returns the ids of nodes id has an edge to, sorted.
func (g *Graph) Callees(id int) []int {
	return g.out[id]
}

// Order implements the yourbasic graph.Iterator interface.
func (g *Graph) Order() int {
	return len(g.nodes)
}

// Visit implements the yourbasic graph.Iterator interface over caller ->
// callee edges. All edges have cost 1.
func (g *Graph) Visit(v int, do func(w int, c int64) bool) bool {
	for _, w := range g.out[v] {
		if do(w, 1) {
			return true
		}
	}
	return false
}
