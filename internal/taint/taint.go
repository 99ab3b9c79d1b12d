// Package taint propagates unsafety backward through caller edges of a call
// graph.
package taint

import (
	"sort"

	"github.com/yourbasic/graph"

	"unsafegraph/internal/callgraph"
)

// Entry describes why a node is tainted.
type Entry struct {
	ID int `json:"id" yaml:"id"`
	// Distance is the number of calls to the nearest directly-unsafe node.
	Distance int `json:"distance" yaml:"distance"`
	// Next is the callee on a shortest path toward unsafe code, or -1 for
	// directly-unsafe nodes.
	Next int `json:"next" yaml:"next"`
	// Source is the directly-unsafe node the shortest path ends at.
	Source int `json:"source" yaml:"source"`
}

// Direct reports whether the node itself contains unsafe code.
func (e Entry) Direct() bool {
	return e.Next < 0
}

// Set is the frozen result of propagation: every node that can reach a
// directly-unsafe node, including those nodes themselves.
type Set struct {
	g       *callgraph.Graph
	entries map[int]Entry
	members []Entry
}

// Propagate computes the taint set of g seeded by the directly-unsafe node
// ids. One breadth-first search runs over reversed edges from all seeds at
// once, so each node is reached first along a shortest path. Runs in
// O(nodes + edges) and terminates on cyclic graphs.
func Propagate(g *callgraph.Graph, direct []int) *Set {
	s := &Set{g: g, entries: make(map[int]Entry)}

	seeds := make([]int, 0, len(direct))
	for _, id := range direct {
		if id < 0 || id >= g.Len() {
			continue
		}
		if _, ok := s.entries[id]; ok {
			continue
		}
		s.entries[id] = Entry{ID: id, Next: -1, Source: id}
		seeds = append(seeds, id)
	}
	// make the search order deterministic
	sort.Ints(seeds)

	q := seeds
	for len(q) > 0 {
		v := q[0]
		q = q[1:]
		cur := s.entries[v]
		for _, w := range g.Callers(v) {
			if _, ok := s.entries[w]; ok {
				continue
			}
			s.entries[w] = Entry{ID: w, Distance: cur.Distance + 1, Next: v, Source: cur.Source}
			q = append(q, w)
		}
	}

	s.members = make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		s.members = append(s.members, e)
	}
	sort.Slice(s.members, func(i, j int) bool {
		a, b := s.members[i], s.members[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		la, lb := g.Node(a.ID).Label, g.Node(b.ID).Label
		if la != lb {
			return la < lb
		}
		return a.ID < b.ID
	})
	return s
}

// Contains reports whether id is tainted.
func (s *Set) Contains(id int) bool {
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of tainted nodes.
func (s *Set) Len() int {
	return len(s.members)
}

// Members returns the tainted nodes sorted by distance, then label.
func (s *Set) Members() []Entry {
	out := make([]Entry, len(s.members))
	copy(out, s.members)
	return out
}

// IDs returns the tainted node ids in ascending order.
func (s *Set) IDs() []int {
	ids := make([]int, 0, len(s.members))
	for _, e := range s.members {
		ids = append(ids, e.ID)
	}
	sort.Ints(ids)
	return ids
}

// Entry returns the taint record of id.
func (s *Set) Entry(id int) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Direct reports whether id was a seed of the propagation.
func (s *Set) Direct(id int) bool {
	e, ok := s.entries[id]
	return ok && e.Direct()
}

// Witness returns a shortest call path from id to directly-unsafe code,
// starting with id itself. It is nil for untainted nodes.
func (s *Set) Witness(id int) []int {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	path := []int{id}
	for !e.Direct() {
		path = append(path, e.Next)
		e = s.entries[e.Next]
	}
	return path
}

// WitnessLabels is Witness rendered as node labels.
func (s *Set) WitnessLabels(id int) []string {
	ids := s.Witness(id)
	labels := make([]string, len(ids))
	for i, n := range ids {
		labels[i] = s.g.Node(n).Label
	}
	return labels
}

// Cycles returns the recursive cycles inside the taint set: strongly
// connected components of size two or more, and self-calling nodes. Each
// cycle is sorted by id and the list is sorted by first id.
func Cycles(g *callgraph.Graph, s *Set) [][]int {
	var cycles [][]int
	for _, comp := range graph.StrongComponents(g) {
		if !s.Contains(comp[0]) {
			continue
		}
		if len(comp) == 1 && !selfLoop(g, comp[0]) {
			continue
		}
		c := append([]int(nil), comp...)
		sort.Ints(c)
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

func selfLoop(g *callgraph.Graph, id int) bool {
	callees := g.Callees(id)
	i := sort.SearchInts(callees, id)
	return i < len(callees) && callees[i] == id
}
