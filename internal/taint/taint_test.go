package taint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unsafegraph/internal/callgraph"
)

// build creates a graph from caller/callee label pairs.
func build(edges ...[2]string) *callgraph.Graph {
	g := callgraph.New()
	for _, e := range edges {
		g.AddEdge(g.AddNode(e[0]), g.AddNode(e[1]))
	}
	return g
}

func id(t *testing.T, g *callgraph.Graph, label string) int {
	t.Helper()
	n, ok := g.Lookup(label)
	require.True(t, ok, "node %s", label)
	return n
}

func labels(g *callgraph.Graph, ids []int) []string {
	out := make([]string, len(ids))
	for i, n := range ids {
		out[i] = g.Node(n).Label
	}
	return out
}

func TestPropagate_Chain(t *testing.T) {
	g := build([2]string{"a", "b"}, [2]string{"b", "m::f"}, [2]string{"c", "a"}, [2]string{"x", "y"})

	s := Propagate(g, []int{id(t, g, "m::f")})

	assert.Equal(t, 4, s.Len())
	for _, l := range []string{"a", "b", "c", "m::f"} {
		assert.True(t, s.Contains(id(t, g, l)), l)
	}
	assert.False(t, s.Contains(id(t, g, "x")))
	assert.False(t, s.Contains(id(t, g, "y")))

	assert.Equal(t, []string{"c", "a", "b", "m::f"}, s.WitnessLabels(id(t, g, "c")))
	assert.True(t, s.Direct(id(t, g, "m::f")))
	assert.False(t, s.Direct(id(t, g, "a")))

	var order []string
	for _, e := range s.Members() {
		order = append(order, g.Node(e.ID).Label)
	}
	assert.Equal(t, []string{"m::f", "b", "a", "c"}, order)
}

func TestPropagate_SpecScenario(t *testing.T) {
	g := build([2]string{"a", "b"}, [2]string{"b", "m::f"})
	s := Propagate(g, []int{id(t, g, "m::f")})
	assert.Equal(t, []string{"a", "b", "m::f"}, labels(g, s.IDs()))
}

func TestPropagate_EmptyBaseline(t *testing.T) {
	g := build([2]string{"a", "b"}, [2]string{"b", "a"})

	s := Propagate(g, nil)

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Members())
	assert.Nil(t, s.Witness(0))
	assert.Empty(t, Cycles(g, s))
}

func TestPropagate_Cycle(t *testing.T) {
	g := build([2]string{"a", "b"}, [2]string{"b", "a"}, [2]string{"d", "d"})
	b := id(t, g, "b")

	s := Propagate(g, []int{b})

	assert.Equal(t, []string{"a", "b"}, labels(g, s.IDs()))
	assert.Equal(t, []string{"a", "b"}, s.WitnessLabels(id(t, g, "a")))

	cycles := Cycles(g, s)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b"}, labels(g, cycles[0]))
}

func TestCycles_SelfLoop(t *testing.T) {
	g := build([2]string{"r", "r"}, [2]string{"main", "r"})
	s := Propagate(g, []int{id(t, g, "r")})

	cycles := Cycles(g, s)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"r"}, labels(g, cycles[0]))
}

func TestPropagate_ShortestWitness(t *testing.T) {
	// top reaches u1 in three calls and u2 in one.
	g := build(
		[2]string{"top", "p"}, [2]string{"p", "q"}, [2]string{"q", "u1"},
		[2]string{"top", "u2"},
	)
	s := Propagate(g, []int{id(t, g, "u1"), id(t, g, "u2")})

	e, ok := s.Entry(id(t, g, "top"))
	require.True(t, ok)
	assert.Equal(t, 1, e.Distance)
	assert.Equal(t, id(t, g, "u2"), e.Source)
	assert.Equal(t, []string{"top", "u2"}, s.WitnessLabels(id(t, g, "top")))
}

func TestPropagate_IgnoresInvalidAndDuplicateSeeds(t *testing.T) {
	g := build([2]string{"a", "b"})
	b := id(t, g, "b")

	s := Propagate(g, []int{b, b, -1, 99})

	assert.Equal(t, 2, s.Len())
}

// Every member is directly unsafe or calls another member.
func TestPropagate_Monotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 25; round++ {
		g := callgraph.New()
		n := 30
		for i := 0; i < n; i++ {
			g.AddNode(string(rune('A' + i)))
		}
		for e := 0; e < 60; e++ {
			g.AddEdge(rng.Intn(n), rng.Intn(n))
		}
		var direct []int
		for i := 0; i < 3; i++ {
			direct = append(direct, rng.Intn(n))
		}

		s := Propagate(g, direct)

		for _, m := range s.Members() {
			if m.Direct() {
				continue
			}
			callsMember := false
			for _, callee := range g.Callees(m.ID) {
				if s.Contains(callee) {
					callsMember = true
					break
				}
			}
			assert.True(t, callsMember, "round %d: node %d has no tainted callee", round, m.ID)

			w := s.Witness(m.ID)
			assert.Len(t, w, m.Distance+1)
			assert.True(t, s.Direct(w[len(w)-1]))
		}

		// adding a seed never removes members
		bigger := Propagate(g, append(direct, rng.Intn(n)))
		for _, id := range s.IDs() {
			assert.True(t, bigger.Contains(id))
		}
	}
}
