package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sccValues(sccs []SCC) [][]int {
	var out [][]int
	for _, scc := range sccs {
		var members []int
		for _, v := range scc.Vertices {
			members = append(members, v.Value.(int))
		}
		out = append(out, members)
	}
	return out
}

func TestStronglyConnectedComponents(t *testing.T) {
	g := NewDirectedGraph()
	// 1 -> 2 -> 3 -> 1 is a cycle, 4 hangs off it, 5 is isolated.
	g.Link(Vertex{1}, Vertex{2}, WW)
	g.Link(Vertex{2}, Vertex{3}, WW)
	g.Link(Vertex{3}, Vertex{1}, WW)
	g.Link(Vertex{3}, Vertex{4}, WW)
	g.Link(Vertex{5}, Vertex{4}, WW)

	sccs := g.StronglyConnectedComponents()
	assert.ElementsMatch(t, [][]int{{1, 2, 3}, {4}, {5}}, sccValues(sccs))
}

func TestStronglyConnectedComponentsTwoCycles(t *testing.T) {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{2}, WW)
	g.Link(Vertex{2}, Vertex{1}, WW)
	g.Link(Vertex{2}, Vertex{3}, WW)
	g.Link(Vertex{3}, Vertex{4}, WW)
	g.Link(Vertex{4}, Vertex{3}, WW)

	sccs := g.NontrivialSCCs()
	assert.ElementsMatch(t, [][]int{{1, 2}, {3, 4}}, sccValues(sccs))
}

func TestNontrivialSCCsSelfLoop(t *testing.T) {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{1}, WW)
	g.Link(Vertex{1}, Vertex{2}, WW)

	sccs := g.NontrivialSCCs()
	assert.Equal(t, [][]int{{1}}, sccValues(sccs))
}

func TestNontrivialSCCsAcyclic(t *testing.T) {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{2}, WW)
	g.Link(Vertex{2}, Vertex{3}, WW)

	assert.Empty(t, g.NontrivialSCCs())
}

func TestStronglyConnectedComponentsDeterministic(t *testing.T) {
	build := func() *DirectedGraph {
		g := NewDirectedGraph()
		g.Link(Vertex{1}, Vertex{2}, WW)
		g.Link(Vertex{2}, Vertex{3}, WW)
		g.Link(Vertex{3}, Vertex{1}, WW)
		g.Link(Vertex{3}, Vertex{4}, WW)
		g.Link(Vertex{4}, Vertex{5}, WW)
		g.Link(Vertex{5}, Vertex{4}, WW)
		return g
	}
	first := sccValues(build().StronglyConnectedComponents())
	second := sccValues(build().StronglyConnectedComponents())
	assert.Equal(t, first, second)
}
