package core

import (
	"sort"
)

// Vertex wraps a graph vertex. The wrapped value must be comparable; ops act
// as vertices through the identity of their mop slice pointer, so vertices of
// one graph must come from a single underlying history.
type Vertex struct {
	Value interface{}
}

// Edge is an intermediate representation of one tagged edge.
type Edge struct {
	From  Vertex
	To    Vertex
	Value Rel
}

// DirectedGraph is a directed graph whose edges carry sets of relationships.
// Vertices are interned into an arena of stable integer ids; adjacency is
// kept per id so that SCC and path searches run over dense indices.
type DirectedGraph struct {
	Arena []Vertex
	IDs   map[Vertex]int
	// OutRels[id] maps successor id to the set of rels on that edge.
	OutRels []map[int]RelSet
	// InIDs[id] is the set of predecessor ids.
	InIDs []map[int]struct{}
}

// NewDirectedGraph ...
func NewDirectedGraph() *DirectedGraph {
	return &DirectedGraph{IDs: map[Vertex]int{}}
}

func (g *DirectedGraph) intern(v Vertex) int {
	if id, ok := g.IDs[v]; ok {
		return id
	}
	id := len(g.Arena)
	g.Arena = append(g.Arena, v)
	g.IDs[v] = id
	g.OutRels = append(g.OutRels, nil)
	g.InIDs = append(g.InIDs, nil)
	return id
}

// ID returns the arena id of v, or -1 when it is not a vertex of g.
func (g *DirectedGraph) ID(v Vertex) int {
	if id, ok := g.IDs[v]; ok {
		return id
	}
	return -1
}

// VertexCount returns the number of vertices.
func (g *DirectedGraph) VertexCount() int {
	return len(g.Arena)
}

// EdgeCount returns the number of directed edges, ignoring rel multiplicity.
func (g *DirectedGraph) EdgeCount() int {
	count := 0
	for _, outs := range g.OutRels {
		count += len(outs)
	}
	return count
}

// Vertices returns all vertices in arena order.
func (g *DirectedGraph) Vertices() []Vertex {
	vs := make([]Vertex, len(g.Arena))
	copy(vs, g.Arena)
	return vs
}

func (g *DirectedGraph) sortedIDs(ids map[int]struct{}) []int {
	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)
	return sorted
}

// In returns the vertices with an edge into v, in arena order.
func (g *DirectedGraph) In(v Vertex) []Vertex {
	id, ok := g.IDs[v]
	if !ok {
		return nil
	}
	var vs []Vertex
	for _, pred := range g.sortedIDs(g.InIDs[id]) {
		vs = append(vs, g.Arena[pred])
	}
	return vs
}

// Out returns the vertices v has an edge to, in arena order.
func (g *DirectedGraph) Out(v Vertex) []Vertex {
	id, ok := g.IDs[v]
	if !ok {
		return nil
	}
	succs := make([]int, 0, len(g.OutRels[id]))
	for succ := range g.OutRels[id] {
		succs = append(succs, succ)
	}
	sort.Ints(succs)
	var vs []Vertex
	for _, succ := range succs {
		vs = append(vs, g.Arena[succ])
	}
	return vs
}

// Rels returns the relationship set on edge a->b, nil when there is no edge.
func (g *DirectedGraph) Rels(a, b Vertex) RelSet {
	aid, ok := g.IDs[a]
	if !ok {
		return nil
	}
	bid, ok := g.IDs[b]
	if !ok {
		return nil
	}
	return g.OutRels[aid][bid]
}

// Edges returns the tagged edges between two vertices.
func (g *DirectedGraph) Edges(a, b Vertex) []Edge {
	var edges []Edge
	for _, rel := range g.Rels(a, b) {
		edges = append(edges, Edge{From: a, To: b, Value: rel})
	}
	return edges
}

// Link adds rel to the edge from->to, creating vertices and the edge as
// needed.
func (g *DirectedGraph) Link(from, to Vertex, rel Rel) {
	fid := g.intern(from)
	tid := g.intern(to)
	if g.OutRels[fid] == nil {
		g.OutRels[fid] = map[int]RelSet{}
	}
	g.OutRels[fid][tid] = g.OutRels[fid][tid].Add(rel)
	if g.InIDs[tid] == nil {
		g.InIDs[tid] = map[int]struct{}{}
	}
	g.InIDs[tid][fid] = struct{}{}
}

// LinkToAll links x to every y.
func (g *DirectedGraph) LinkToAll(x Vertex, ys []Vertex, rel Rel) {
	for _, y := range ys {
		g.Link(x, y, rel)
	}
}

// LinkAllTo links every x to y.
func (g *DirectedGraph) LinkAllTo(xs []Vertex, y Vertex, rel Rel) {
	for _, x := range xs {
		g.Link(x, y, rel)
	}
}

// LinkAllToAll links every x to every y.
func (g *DirectedGraph) LinkAllToAll(xs, ys []Vertex, rel Rel) {
	for _, x := range xs {
		g.LinkToAll(x, ys, rel)
	}
}

// UnLink removes the edge a->b with all its rels.
func (g *DirectedGraph) UnLink(a, b Vertex) {
	aid, ok := g.IDs[a]
	if !ok {
		return
	}
	bid, ok := g.IDs[b]
	if !ok {
		return
	}
	delete(g.OutRels[aid], bid)
	delete(g.InIDs[bid], aid)
}

// Fork returns an independent copy of the graph. Vertex values are shared;
// they are immutable by contract.
func (g *DirectedGraph) Fork() *DirectedGraph {
	forked := &DirectedGraph{
		Arena:   make([]Vertex, len(g.Arena)),
		IDs:     make(map[Vertex]int, len(g.IDs)),
		OutRels: make([]map[int]RelSet, len(g.OutRels)),
		InIDs:   make([]map[int]struct{}, len(g.InIDs)),
	}
	copy(forked.Arena, g.Arena)
	for v, id := range g.IDs {
		forked.IDs[v] = id
	}
	for id, outs := range g.OutRels {
		if outs == nil {
			continue
		}
		forked.OutRels[id] = make(map[int]RelSet, len(outs))
		for succ, rels := range outs {
			forked.OutRels[id][succ] = append(RelSet{}, rels...)
		}
	}
	for id, ins := range g.InIDs {
		if ins == nil {
			continue
		}
		forked.InIDs[id] = make(map[int]struct{}, len(ins))
		for pred := range ins {
			forked.InIDs[id][pred] = struct{}{}
		}
	}
	return forked
}

// filterEdges keeps the edges whose rel set, filtered through keep, is
// non-empty. Every vertex survives so SCC vertex sets stay comparable.
func (g *DirectedGraph) filterEdges(keep func(RelSet) RelSet) *DirectedGraph {
	filtered := NewDirectedGraph()
	for _, v := range g.Arena {
		filtered.intern(v)
	}
	for id, outs := range g.OutRels {
		for succ, rels := range outs {
			for _, rel := range keep(rels) {
				filtered.Link(g.Arena[id], g.Arena[succ], rel)
			}
		}
	}
	return filtered
}

// ProjectRelationship filters the graph to edges carrying the given rel.
func (g *DirectedGraph) ProjectRelationship(rel Rel) *DirectedGraph {
	return g.FilterRelationships([]Rel{rel})
}

// FilterRelationships filters the graph to edges which intersect the given
// rel set.
func (g *DirectedGraph) FilterRelationships(rels []Rel) *DirectedGraph {
	want := map[Rel]struct{}{}
	for _, rel := range rels {
		want[rel] = struct{}{}
	}
	return g.filterEdges(func(edge RelSet) RelSet {
		var kept RelSet
		for _, rel := range edge {
			if _, ok := want[rel]; ok {
				kept = append(kept, rel)
			}
		}
		return kept
	})
}

// RemoveRelationship drops the given rel from every edge, removing edges
// left with no rels.
func (g *DirectedGraph) RemoveRelationship(rel Rel) *DirectedGraph {
	return g.filterEdges(func(edge RelSet) RelSet {
		var kept RelSet
		for _, r := range edge {
			if r != rel {
				kept = append(kept, r)
			}
		}
		return kept
	})
}

// MapVertices rewrites every vertex value through f, merging edges of
// vertices that collapse onto one value.
func (g *DirectedGraph) MapVertices(f func(interface{}) interface{}) *DirectedGraph {
	mapped := NewDirectedGraph()
	for id, outs := range g.OutRels {
		from := Vertex{Value: f(g.Arena[id].Value)}
		mapped.intern(from)
		for succ, rels := range outs {
			to := Vertex{Value: f(g.Arena[succ].Value)}
			for _, rel := range rels {
				mapped.Link(from, to, rel)
			}
		}
	}
	return mapped
}

// Bfs returns every vertex reachable from the starting set, following out
// edges when out is true and in edges otherwise. Start vertices absent from
// the graph are still included in the result.
func (g *DirectedGraph) Bfs(start []Vertex, out bool) []Vertex {
	seen := map[int]struct{}{}
	var result []Vertex
	var queue []int
	for _, v := range start {
		id, ok := g.IDs[v]
		if !ok {
			result = append(result, v)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, g.Arena[id])
		var neighbors []int
		if out {
			for succ := range g.OutRels[id] {
				neighbors = append(neighbors, succ)
			}
		} else {
			for pred := range g.InIDs[id] {
				neighbors = append(neighbors, pred)
			}
		}
		sort.Ints(neighbors)
		for _, n := range neighbors {
			if _, dup := seen[n]; !dup {
				seen[n] = struct{}{}
				queue = append(queue, n)
			}
		}
	}
	return result
}

// DigraphUnion unions graphs, merging relationship sets on shared edges.
func DigraphUnion(graphs ...*DirectedGraph) *DirectedGraph {
	union := NewDirectedGraph()
	for _, g := range graphs {
		if g == nil {
			continue
		}
		for _, v := range g.Arena {
			union.intern(v)
		}
		for id, outs := range g.OutRels {
			for succ, rels := range outs {
				for _, rel := range rels {
					union.Link(g.Arena[id], g.Arena[succ], rel)
				}
			}
		}
	}
	return union
}

// MapToDirectedGraph builds a graph from an adjacency map with untagged
// edges.
func MapToDirectedGraph(m map[Vertex][]Vertex) *DirectedGraph {
	g := NewDirectedGraph()
	for from, tos := range m {
		g.intern(from)
		for _, to := range tos {
			g.Link(from, to, Empty)
		}
	}
	return g
}
