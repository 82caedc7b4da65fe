package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func chainGraph() *DirectedGraph {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{2}, "")
	g.Link(Vertex{2}, Vertex{3}, "")
	g.Link(Vertex{3}, Vertex{4}, "")
	g.Link(Vertex{4}, Vertex{5}, "")
	g.Link(Vertex{5}, Vertex{6}, "")
	g.Link(Vertex{6}, Vertex{4}, "")
	g.Link(Vertex{6}, Vertex{1}, "")
	return g
}

func TestFindCycle1(t *testing.T) {
	g := chainGraph()
	cycle := FindCycle(g, SCC{
		Vertices: []Vertex{{4}, {5}, {6}},
	})
	assert.Equal(t, []Vertex{{4}, {5}, {6}, {4}}, cycle)
}

func TestFindCycle2(t *testing.T) {
	g := chainGraph()
	cycle := FindCycle(g, SCC{
		Vertices: []Vertex{{1}, {2}, {3}, {4}, {5}, {6}},
	})
	assert.Equal(t, []Vertex{{4}, {5}, {6}, {4}}, cycle)
}

func TestFindCycle3(t *testing.T) {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{2}, "")
	g.Link(Vertex{2}, Vertex{1}, "")

	cycle := FindCycle(g, SCC{
		Vertices: []Vertex{{1}, {2}},
	})
	assert.Equal(t, []Vertex{{1}, {2}, {1}}, cycle)
}

func TestFindCycleNoCycle(t *testing.T) {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{2}, "")
	g.Link(Vertex{2}, Vertex{3}, "")

	cycle := FindCycle(g, SCC{Vertices: []Vertex{{1}, {2}, {3}}})
	assert.Nil(t, cycle)
}

func taggedChainGraph() *DirectedGraph {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{2}, "start1")
	g.Link(Vertex{2}, Vertex{3}, "")
	g.Link(Vertex{3}, Vertex{4}, "")
	g.Link(Vertex{4}, Vertex{5}, "start4")
	g.Link(Vertex{5}, Vertex{6}, "")
	g.Link(Vertex{6}, Vertex{4}, "")
	g.Link(Vertex{6}, Vertex{1}, "")
	return g
}

func TestFindCycleStartingWith1(t *testing.T) {
	g := taggedChainGraph()
	cycle := FindCycleStartingWith(g, SCC{
		Vertices: []Vertex{{1}, {2}, {3}, {4}, {5}, {6}},
	}, "start4", []Rel{"", "start1"})
	assert.Equal(t, []Vertex{{4}, {5}, {6}, {4}}, cycle)
}

func TestFindCycleStartingWith2(t *testing.T) {
	g := taggedChainGraph()
	cycle := FindCycleStartingWith(g, SCC{
		Vertices: []Vertex{{1}, {2}, {3}, {4}, {5}, {6}},
	}, "start1", []Rel{"", "start4"})
	assert.Equal(t, []Vertex{{1}, {2}, {3}, {4}, {5}, {6}, {1}}, cycle)
}

func TestFindCycleStartingWith3(t *testing.T) {
	g := taggedChainGraph()
	cycle := FindCycleStartingWith(g, SCC{
		Vertices: []Vertex{{1}, {2}, {3}, {4}, {5}, {6}},
	}, "", []Rel{"", "start1", "start4"})
	assert.Equal(t, []Vertex{{5}, {6}, {4}, {5}}, cycle)
}

func TestLinkMergesRels(t *testing.T) {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{2}, WW)
	g.Link(Vertex{1}, Vertex{2}, WR)
	g.Link(Vertex{1}, Vertex{2}, WW)

	assert.Equal(t, RelSet{WR, WW}, g.Rels(Vertex{1}, Vertex{2}))
	assert.Equal(t, 1, g.EdgeCount())
}

func TestDigraphUnionCommutative(t *testing.T) {
	a := NewDirectedGraph()
	a.Link(Vertex{1}, Vertex{2}, WW)
	a.Link(Vertex{2}, Vertex{3}, WR)

	b := NewDirectedGraph()
	b.Link(Vertex{1}, Vertex{2}, WR)
	b.Link(Vertex{3}, Vertex{1}, RW)

	ab := DigraphUnion(a, b)
	ba := DigraphUnion(b, a)

	assert.Equal(t, ab.EdgeCount(), ba.EdgeCount())
	for _, from := range ab.Vertices() {
		for _, to := range ab.Out(from) {
			assert.Equal(t, ab.Rels(from, to), ba.Rels(from, to))
		}
	}
	assert.Equal(t, RelSet{WR, WW}, ab.Rels(Vertex{1}, Vertex{2}))
}

func TestFilterRelationships(t *testing.T) {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{2}, WW)
	g.Link(Vertex{2}, Vertex{3}, WR)
	g.Link(Vertex{3}, Vertex{1}, Realtime)

	filtered := g.FilterRelationships([]Rel{WW, WR})
	assert.Equal(t, 2, filtered.EdgeCount())
	assert.Empty(t, filtered.Rels(Vertex{3}, Vertex{1}))
	// vertex set survives filtering so SCCs stay comparable
	assert.Equal(t, g.VertexCount(), filtered.VertexCount())
}

func TestProjectRelationship(t *testing.T) {
	g := NewDirectedGraph()
	g.Link(Vertex{1}, Vertex{2}, WW)
	g.Link(Vertex{1}, Vertex{2}, WR)
	g.Link(Vertex{2}, Vertex{3}, WR)

	ww := g.ProjectRelationship(WW)
	assert.Equal(t, 1, ww.EdgeCount())
	assert.Equal(t, RelSet{WW}, ww.Rels(Vertex{1}, Vertex{2}))
}

func TestBfs(t *testing.T) {
	g := chainGraph()
	reached := g.Bfs([]Vertex{{4}}, true)
	assert.ElementsMatch(t, []Vertex{{1}, {2}, {3}, {4}, {5}, {6}}, reached)

	back := g.Bfs([]Vertex{{2}}, false)
	assert.ElementsMatch(t, []Vertex{{1}, {2}, {6}, {5}, {4}, {3}}, back)
}
