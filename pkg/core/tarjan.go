package core

import (
	"sort"
)

// SCC is one strongly connected component, vertices in arena order.
type SCC struct {
	Vertices []Vertex
}

// StronglyConnectedComponents decomposes the graph with an iterative Tarjan:
// an explicit frame stack replaces recursion, auxiliary arrays are sized to
// the vertex count.
func (g *DirectedGraph) StronglyConnectedComponents() []SCC {
	n := len(g.Arena)
	var (
		index    = 1
		indices  = make([]int, n) // 0 = unvisited
		lowlinks = make([]int, n)
		onStack  = make([]bool, n)
		stack    = make([]int, 0, n)
		sccs     []SCC
	)

	type frame struct {
		v     int
		succs []int
		next  int
	}

	succsOf := func(v int) []int {
		succs := make([]int, 0, len(g.OutRels[v]))
		for succ := range g.OutRels[v] {
			succs = append(succs, succ)
		}
		sort.Ints(succs)
		return succs
	}

	for root := 0; root < n; root++ {
		if indices[root] != 0 {
			continue
		}
		frames := []frame{{v: root, succs: succsOf(root)}}
		indices[root], lowlinks[root] = index, index
		index++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			top := &frames[len(frames)-1]
			if top.next < len(top.succs) {
				w := top.succs[top.next]
				top.next++
				if indices[w] == 0 {
					indices[w], lowlinks[w] = index, index
					index++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, frame{v: w, succs: succsOf(w)})
				} else if onStack[w] && indices[w] < lowlinks[top.v] {
					lowlinks[top.v] = indices[w]
				}
				continue
			}

			v := top.v
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := &frames[len(frames)-1]
				if lowlinks[v] < lowlinks[parent.v] {
					lowlinks[parent.v] = lowlinks[v]
				}
			}
			if lowlinks[v] != indices[v] {
				continue
			}
			var members []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				members = append(members, w)
				if w == v {
					break
				}
			}
			sort.Ints(members)
			scc := SCC{Vertices: make([]Vertex, 0, len(members))}
			for _, m := range members {
				scc.Vertices = append(scc.Vertices, g.Arena[m])
			}
			sccs = append(sccs, scc)
		}
	}
	return sccs
}

// NontrivialSCCs keeps the components which contain a cycle: more than one
// vertex, or a single vertex with a self edge.
func (g *DirectedGraph) NontrivialSCCs() []SCC {
	var result []SCC
	for _, scc := range g.StronglyConnectedComponents() {
		if len(scc.Vertices) > 1 {
			result = append(result, scc)
			continue
		}
		v := scc.Vertices[0]
		if len(g.Rels(v, v)) > 0 {
			result = append(result, scc)
		}
	}
	return result
}
