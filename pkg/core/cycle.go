package core

// BFSPath holds shortest forward paths from every vertex of a component to
// one target vertex. Built by a reverse breadth-first expansion from the
// target, so duplicate path tips collapse for free.
type BFSPath struct {
	marked map[Vertex]struct{}
	edgeTo map[Vertex]Vertex
	distTo map[Vertex]int
}

// NewBFSPath runs the reverse BFS from target, restricted to the given
// vertex set.
func NewBFSPath(graph *DirectedGraph, target Vertex, set map[Vertex]struct{}) *BFSPath {
	bfsPath := BFSPath{
		marked: map[Vertex]struct{}{},
		edgeTo: map[Vertex]Vertex{},
		distTo: map[Vertex]int{},
	}
	bfsPath.bfs(graph, target, set)
	return &bfsPath
}

func toSet(vertices []Vertex) map[Vertex]struct{} {
	set := map[Vertex]struct{}{}
	for _, v := range vertices {
		set[v] = struct{}{}
	}
	return set
}

func (path *BFSPath) bfs(graph *DirectedGraph, target Vertex, set map[Vertex]struct{}) {
	queue := []Vertex{target}
	path.marked[target] = struct{}{}
	path.distTo[target] = 0

	for len(queue) != 0 {
		current := queue[0]
		queue = queue[1:]
		for _, v := range graph.In(current) {
			if _, inSet := set[v]; !inSet {
				continue
			}
			if _, seen := path.marked[v]; seen {
				continue
			}
			path.edgeTo[v] = current
			path.distTo[v] = path.distTo[current] + 1
			path.marked[v] = struct{}{}
			queue = append(queue, v)
		}
	}
}

// HasPathTo reports whether vertex reaches the target.
func (path *BFSPath) HasPathTo(vertex Vertex) bool {
	_, hasPath := path.marked[vertex]
	return hasPath
}

// DistTo returns the forward distance from vertex to the target, -1 when
// unreachable.
func (path *BFSPath) DistTo(vertex Vertex) int {
	length, hasPath := path.distTo[vertex]
	if !hasPath {
		return -1
	}
	return length
}

// PathTo returns the forward path vertex -> ... -> target.
func (path *BFSPath) PathTo(vertex Vertex) []Vertex {
	if !path.HasPathTo(vertex) {
		return nil
	}
	var paths []Vertex
	current := vertex
	for path.distTo[current] != 0 {
		paths = append(paths, current)
		current = path.edgeTo[current]
	}
	return append(paths, current)
}

// FindCycle finds a shortest cycle inside one strongly connected component.
// Returns the cycle as a vertex path whose first and last element are equal,
// or nil when the component holds no cycle.
func FindCycle(graph *DirectedGraph, scc SCC) []Vertex {
	set := toSet(scc.Vertices)
	var best []Vertex
	for _, v := range scc.Vertices {
		paths := NewBFSPath(graph, v, set)
		for _, w := range graph.Out(v) {
			if _, inSet := set[w]; !inSet {
				continue
			}
			dist := paths.DistTo(w)
			if dist < 0 {
				continue
			}
			if best != nil && dist+2 >= len(best) {
				continue
			}
			cycle := append([]Vertex{v}, paths.PathTo(w)...)
			best = cycle
		}
	}
	return best
}

// FindCycleStartingWith finds a shortest cycle whose first edge carries
// firstRel and whose remaining edges each carry one of restRels. Both edge
// pools are restricted to the component before searching.
func FindCycleStartingWith(graph *DirectedGraph, scc SCC, firstRel Rel, restRels []Rel) []Vertex {
	var (
		set    = toSet(scc.Vertices)
		firstG = graph.ProjectRelationship(firstRel)
		restG  = graph.FilterRelationships(restRels)
		best   []Vertex
	)
	for _, v := range scc.Vertices {
		paths := NewBFSPath(restG, v, set)
		for _, w := range firstG.Out(v) {
			if _, inSet := set[w]; !inSet {
				continue
			}
			dist := paths.DistTo(w)
			if dist < 0 {
				continue
			}
			if best != nil && dist+2 >= len(best) {
				continue
			}
			cycle := append([]Vertex{v}, paths.PathTo(w)...)
			best = cycle
		}
	}
	return best
}
