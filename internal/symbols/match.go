package symbols

import (
	"sort"

	"unsafegraph/internal/callgraph"
	"unsafegraph/internal/scanner"
)

// FindingMatch pairs a finding with the graph nodes it matched.
type FindingMatch struct {
	Finding scanner.Finding `json:"finding" yaml:"finding"`
	Base    string          `json:"base" yaml:"base"`
	Nodes   []int           `json:"nodes" yaml:"nodes"`
}

// MatchSet is the result of matching findings onto a call graph.
type MatchSet struct {
	// Direct maps each directly-unsafe node id to the findings it matched.
	Direct map[int][]scanner.Finding
	// ByFinding lists every finding with its matched nodes, sorted by
	// finding.
	ByFinding []FindingMatch
	// Unobserved are findings with no matching node: unsafe code present
	// but unobserved in the call graph.
	Unobserved []scanner.Finding
}

// DirectIDs returns the directly-unsafe node ids in ascending order.
func (m *MatchSet) DirectIDs() []int {
	ids := make([]int, 0, len(m.Direct))
	for id := range m.Direct {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Match attributes findings to graph nodes. A node matches a finding when
// its full normalised label equals the finding's base path, or when its
// base path does (generic instantiations, closures and shims of the same
// function). Node Normalized and Candidates fields are rewritten.
//
// The result does not depend on the order of findings.
func Match(findings []scanner.Finding, g *callgraph.Graph) *MatchSet {
	sorted := make([]scanner.Finding, len(findings))
	copy(sorted, findings)
	sorted = scanner.SortFindings(sorted)

	byBase := make(map[string][]int)
	bases := make([]string, len(sorted))
	for i, f := range sorted {
		bases[i] = NormalizeFinding(f.Path).Base
		byBase[bases[i]] = append(byBase[bases[i]], i)
	}

	ms := &MatchSet{Direct: make(map[int][]scanner.Finding)}
	nodesOf := make([][]int, len(sorted))

	for _, n := range g.Nodes() {
		sym := Normalize(n.Label)
		n.Normalized = sym.Base
		n.Candidates = nil

		matched := byBase[sym.Full]
		if sym.Base != sym.Full {
			matched = union(matched, byBase[sym.Base])
		}
		if len(matched) == 0 {
			continue
		}

		seen := map[string]bool{}
		for _, i := range matched {
			ms.Direct[n.ID] = append(ms.Direct[n.ID], sorted[i])
			nodesOf[i] = append(nodesOf[i], n.ID)
			if !seen[sorted[i].Path] {
				seen[sorted[i].Path] = true
				n.Candidates = append(n.Candidates, sorted[i].Path)
			}
		}
		sort.Strings(n.Candidates)
	}

	for i, f := range sorted {
		ms.ByFinding = append(ms.ByFinding, FindingMatch{Finding: f, Base: bases[i], Nodes: nodesOf[i]})
		if len(nodesOf[i]) == 0 {
			ms.Unobserved = append(ms.Unobserved, f)
		}
	}
	return ms
}

// union merges two ascending index lists.
func union(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i >= len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
