package txn

import (
	"github.com/pingcap/tichecker/pkg/core"
)

// FilterExType decides whether an explained cycle really belongs to a spec.
// It sees the full dependency graph so it can inspect the rels on the
// cycle's edges.
type FilterExType = func(graph *core.DirectedGraph, cycleCase *CycleCase) bool

// CycleAnomalySpecType restricts the cycle search for one anomaly class.
type CycleAnomalySpecType struct {
	// Rels: every edge of the cycle must carry one of these.
	Rels map[core.Rel]struct{}

	// FirstRel: the first edge must carry this relationship.
	FirstRel core.Rel
	// RestRels: every remaining edge must carry one of these.
	RestRels map[core.Rel]struct{}

	// FilterEx prunes cycles that match the search but belong to a
	// stricter class, e.g. a one-rw cycle found by the G2-item search is
	// really G-single.
	FilterEx FilterExType
}

// CycleAnomalySpecs maps anomaly names to their search specs.
var CycleAnomalySpecs map[string]CycleAnomalySpecType

func fromRels(rels ...core.Rel) CycleAnomalySpecType {
	return fromRelsWithFilter(nil, rels...)
}

func fromRelsWithFilter(filter FilterExType, rels ...core.Rel) CycleAnomalySpecType {
	relsSet := map[core.Rel]struct{}{}
	for _, v := range rels {
		relsSet[v] = struct{}{}
	}
	return CycleAnomalySpecType{
		Rels:     relsSet,
		FilterEx: filter,
	}
}

func fromFirstRelAndRest(first core.Rel, rests ...core.Rel) CycleAnomalySpecType {
	return fromFirstRelAndRestWithFilter(nil, first, rests...)
}

func fromFirstRelAndRestWithFilter(filter FilterExType, first core.Rel, rests ...core.Rel) CycleAnomalySpecType {
	restSet := map[core.Rel]struct{}{}
	for _, v := range rests {
		restSet[v] = struct{}{}
	}
	return CycleAnomalySpecType{
		FirstRel: first,
		RestRels: restSet,
		FilterEx: filter,
	}
}

// cycleRelCount counts the edges of the cycle carrying rel.
func cycleRelCount(graph *core.DirectedGraph, c *CycleCase, rel core.Rel) int {
	count := 0
	for i := 0; i+1 < len(c.Circle.Path); i++ {
		from := core.Vertex{Value: c.Circle.Path[i]}
		to := core.Vertex{Value: c.Circle.Path[i+1]}
		if graph.Rels(from, to).Contains(rel) {
			count++
		}
	}
	return count
}

// requireRel keeps only cycles that actually use an edge of the given kind.
// The rel-restricted search guarantees every edge may carry it, not that one
// does.
func requireRel(rel core.Rel) FilterExType {
	return func(graph *core.DirectedGraph, c *CycleCase) bool {
		return cycleRelCount(graph, c, rel) > 0
	}
}

// multipleRW separates G2-item from G-single: a single-anti-dependency cycle
// belongs to the stricter class.
func multipleRW(graph *core.DirectedGraph, c *CycleCase) bool {
	return cycleRelCount(graph, c, core.RW) > 1
}

func and(filters ...FilterExType) FilterExType {
	return func(graph *core.DirectedGraph, c *CycleCase) bool {
		for _, f := range filters {
			if !f(graph, c) {
				return false
			}
		}
		return true
	}
}

func init() {
	CycleAnomalySpecs = map[string]CycleAnomalySpecType{
		"G0":       fromRels(core.WW),
		"G1c":      fromFirstRelAndRest(core.WR, core.WW, core.WR),
		"G-single": fromFirstRelAndRest(core.RW, core.WW, core.WR),
		"G2-item":  fromFirstRelAndRestWithFilter(multipleRW, core.RW, core.WW, core.WR, core.RW),

		"G0-process":       fromRelsWithFilter(requireRel(core.Process), core.WW, core.Process),
		"G1c-process":      fromFirstRelAndRestWithFilter(requireRel(core.Process), core.WR, core.WW, core.WR, core.Process),
		"G-single-process": fromFirstRelAndRestWithFilter(requireRel(core.Process), core.RW, core.WW, core.WR, core.Process),
		"G2-item-process":  fromFirstRelAndRestWithFilter(and(requireRel(core.Process), multipleRW), core.RW, core.WW, core.WR, core.RW, core.Process),

		"G0-realtime":       fromRelsWithFilter(requireRel(core.Realtime), core.WW, core.Realtime),
		"G1c-realtime":      fromFirstRelAndRestWithFilter(requireRel(core.Realtime), core.WR, core.WW, core.WR, core.Realtime),
		"G-single-realtime": fromFirstRelAndRestWithFilter(requireRel(core.Realtime), core.RW, core.WW, core.WR, core.Realtime),
		"G2-item-realtime":  fromFirstRelAndRestWithFilter(and(requireRel(core.Realtime), multipleRW), core.RW, core.WW, core.WR, core.RW, core.Realtime),
	}
}
