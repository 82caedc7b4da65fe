package core

import (
	"sort"
	"strings"
)

// Rel stands for a relationship tag on a dependency edge.
type Rel string

// Rel enums
const (
	Empty        Rel = ""
	WW           Rel = "ww"
	WR           Rel = "wr"
	RW           Rel = "rw"
	Process      Rel = "process"
	Realtime     Rel = "realtime"
	MonotonicKey Rel = "monotonic-key"
)

// RelSet is a sorted set of rels.
type RelSet []Rel

func (r RelSet) Len() int           { return len(r) }
func (r RelSet) Less(i, j int) bool { return r[i] < r[j] }
func (r RelSet) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }

// Add returns the set with rel included, keeping it sorted.
func (r RelSet) Add(rel Rel) RelSet {
	i := sort.Search(len(r), func(i int) bool { return r[i] >= rel })
	if i < len(r) && r[i] == rel {
		return r
	}
	rs := make(RelSet, 0, len(r)+1)
	rs = append(rs, r[:i]...)
	rs = append(rs, rel)
	rs = append(rs, r[i:]...)
	return rs
}

// Contains reports membership.
func (r RelSet) Contains(rel Rel) bool {
	i := sort.Search(len(r), func(i int) bool { return r[i] >= rel })
	return i < len(r) && r[i] == rel
}

// Append unions the given rels into a fresh sorted set.
func (r RelSet) Append(rels map[Rel]struct{}) RelSet {
	rs := append(RelSet{}, r...)
	for rel := range rels {
		rs = rs.Add(rel)
	}
	return rs
}

// Anomaly unifies all kinds of anomalies, like G1a, divergence, lost writes.
type Anomaly interface {
	IAnomaly()
	String() string
}

// Anomalies maps anomaly type names to their occurrences.
type Anomalies map[string][]Anomaly

// Merge merges another anomaly map, concatenating on collision so no finding
// is lost to a later overwrite.
func (a Anomalies) Merge(another Anomalies) {
	for key, value := range another {
		a[key] = append(a[key], value...)
	}
}

// SelectKeys selects the given keys into a new Anomalies.
func (a Anomalies) SelectKeys(anomalyNames map[string]struct{}) Anomalies {
	anomalies := make(Anomalies)
	for name := range anomalyNames {
		if value, ok := a[name]; ok {
			anomalies[name] = value
		}
	}
	return anomalies
}

// Keys returns the sorted anomaly type names.
func (a Anomalies) Keys() (keys []string) {
	for key := range a {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return
}

// Analyzer is a function which takes a history and returns anomalies found
// while building its graph, the dependency graph itself, and an explainer
// able to justify any edge of that graph.
type Analyzer func(history History) (Anomalies, *DirectedGraph, DataExplainer)

// PathType aliases Op: cycle paths are sequences of completed operations.
type PathType = Op

// IndexOfMop returns the index of mop within the op, or -1.
func (op PathType) IndexOfMop(mop Mop) int {
	if op.Value == nil {
		return -1
	}
	for idx, m := range *op.Value {
		if m.IsEqual(mop) {
			return idx
		}
	}
	return -1
}

// Circle is a cycle path; the first op equals the last.
type Circle struct {
	Path []PathType
}

// NewCircle builds a Circle from a vertex path.
func NewCircle(vertices []Vertex) *Circle {
	if vertices == nil {
		return nil
	}
	c := Circle{Path: make([]PathType, 0, len(vertices))}
	for _, vertex := range vertices {
		c.Path = append(c.Path, vertex.Value.(PathType))
	}
	return &c
}

// String ...
func (c Circle) String() string {
	parts := make([]string, 0, len(c.Path))
	for _, op := range c.Path {
		parts = append(parts, op.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Step is one explained edge of a cycle.
type Step struct {
	Result ExplainResult
}

// ProcessOrder links each op of one process to the next op of that process.
func ProcessOrder(history History, process int) *DirectedGraph {
	graph := NewDirectedGraph()
	processHistory := history.FilterProcess(process)
	for i := 0; i < len(processHistory)-1; i++ {
		graph.Link(Vertex{processHistory[i]}, Vertex{processHistory[i+1]}, Process)
	}
	return graph
}

// ProcessGraph analyzes process order over completed ops.
func ProcessGraph(history History) (Anomalies, *DirectedGraph, DataExplainer) {
	var (
		okHistory = FilterOkHistory(history)
		seen      = map[int]struct{}{}
		graphs    []*DirectedGraph
	)
	for _, op := range okHistory {
		if !op.Process.Present() {
			continue
		}
		if _, ok := seen[op.Process.MustGet()]; !ok {
			seen[op.Process.MustGet()] = struct{}{}
			graphs = append(graphs, ProcessOrder(okHistory, op.Process.MustGet()))
		}
	}
	return nil, DigraphUnion(graphs...), ProcessExplainer{}
}

// RealtimeGraph links a->b whenever a completed before b was invoked. A
// frontier of open completions keeps the pass near-linear: once a completion
// is transitively implied by a newer one it retires from the frontier.
func RealtimeGraph(history History) (Anomalies, *DirectedGraph, DataExplainer) {
	g := NewDirectedGraph()
	pairs := history.PairIndex()
	frontier := map[Op]struct{}{}

	for i := range history {
		op := &history[i]
		if !op.Process.Present() {
			continue
		}
		switch op.Type {
		case OpTypeInvoke:
			if pairs[i] < 0 {
				continue
			}
			completion := history[pairs[i]]
			if completion.Type != OpTypeOk {
				continue
			}
			for _, open := range sortOpSet(frontier) {
				g.Link(Vertex{open}, Vertex{completion}, Realtime)
			}
		case OpTypeOk:
			// Anything already linked into this op is implied by it.
			for _, implied := range g.In(Vertex{*op}) {
				if prev, ok := implied.Value.(Op); ok {
					delete(frontier, prev)
				}
			}
			frontier[*op] = struct{}{}
		}
	}
	return nil, g, RealtimeExplainer{pairs: pairs, history: history}
}

func sortOpSet(set map[Op]struct{}) []Op {
	ops := make([]Op, 0, len(set))
	for op := range set {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Index.MustGet() < ops[j].Index.MustGet()
	})
	return ops
}

// MonotonicKeyOrder links ops observing a lower value of key k to ops
// observing a higher one. Register values per key are assumed non-decreasing.
func MonotonicKeyOrder(history History, k string) *DirectedGraph {
	var (
		val2ops = map[int][]Op{}
		vals    []int
	)
	graph := NewDirectedGraph()

	for _, op := range history {
		if op.Value == nil {
			continue
		}
		for _, mop := range *op.Value {
			if mop.GetKey() != k {
				continue
			}
			mopVal, ok := mop.GetValue().(int)
			if !ok {
				continue
			}
			if _, seen := val2ops[mopVal]; !seen {
				vals = append(vals, mopVal)
			}
			val2ops[mopVal] = append(val2ops[mopVal], op)
			// one observation per op is enough
			break
		}
	}

	sort.Ints(vals)
	for i := 0; i < len(vals)-1; i++ {
		var xs, ys []Vertex
		for _, x := range val2ops[vals[i]] {
			xs = append(xs, Vertex{x})
		}
		for _, y := range val2ops[vals[i+1]] {
			ys = append(ys, Vertex{y})
		}
		graph.LinkAllToAll(xs, ys, MonotonicKey)
	}
	return graph
}

// MonotonicKeyGraph analyzes monotonic key order.
func MonotonicKeyGraph(history History) (Anomalies, *DirectedGraph, DataExplainer) {
	var (
		okHistory = FilterOkHistory(history)
		seen      = map[string]struct{}{}
		graphs    []*DirectedGraph
	)
	for _, key := range okHistory.GetKeys(MopTypeAll) {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			graphs = append(graphs, MonotonicKeyOrder(okHistory, key))
		}
	}
	return nil, DigraphUnion(graphs...), MonotonicKeyExplainer{}
}

// CheckResult is the outcome of running one analyzer over a history.
type CheckResult struct {
	Graph     *DirectedGraph
	Explainer DataExplainer
	// Cycles holds one rendered explanation per non-trivial SCC.
	Cycles    []string
	Sccs      []SCC
	Anomalies Anomalies
}

// Check runs the analyzer over the history, decomposes the graph into
// strongly connected components and renders an explanation for every
// component that contains a cycle.
func Check(analyzer Analyzer, history History) CheckResult {
	anomalies, g, explainer := analyzer(history)
	if g == nil {
		panic("analyzer returned a nil graph")
	}
	if anomalies == nil {
		anomalies = make(Anomalies)
	}
	sccs := g.NontrivialSCCs()
	var cycles []string
	for _, scc := range sccs {
		cycles = append(cycles, explainSCC(g, &CycleExplainer{}, explainer, scc))
	}
	return CheckResult{
		Graph:     g,
		Explainer: explainer,
		Cycles:    cycles,
		Sccs:      sccs,
		Anomalies: anomalies,
	}
}
