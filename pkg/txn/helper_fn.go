package txn

import (
	"hash/fnv"
	"sort"

	"github.com/pingcap/tichecker/pkg/core"
)

// OpMopIterator walks every mop of every op in history order.
type OpMopIterator struct {
	history      core.History
	historyIndex int
	mopIndex     int
}

// Next yields the next op-mop pair.
func (omi *OpMopIterator) Next() (core.Op, core.Mop) {
	op, mop := omi.history[omi.historyIndex], (*omi.history[omi.historyIndex].Value)[omi.mopIndex]

	omi.mopIndex++
	if omi.mopIndex == omi.history[omi.historyIndex].ValueLength() {
		omi.mopIndex = 0
		omi.historyIndex++
		omi.skipEmpty()
	}
	return op, mop
}

// HasNext returns whether the iterator has ended.
func (omi *OpMopIterator) HasNext() bool {
	return omi.historyIndex < len(omi.history)
}

func (omi *OpMopIterator) skipEmpty() {
	for omi.historyIndex < len(omi.history) && omi.history[omi.historyIndex].ValueLength() == 0 {
		omi.historyIndex++
	}
}

// OpMops returns an iterator over history.
func OpMops(history core.History) *OpMopIterator {
	omi := &OpMopIterator{history: history}
	omi.skipEmpty()
	return omi
}

// IntermediateWrites finds writes that were overwritten inside their own op:
// map[key](map[overwritten-value]op). A read observing one of these saw state
// no op ever exposed.
func IntermediateWrites(history core.History) map[string]map[core.MopValueType]*core.Op {
	im := map[string]map[core.MopValueType]*core.Op{}

	for idx, op := range history {
		if op.Value == nil {
			continue
		}
		final := map[string]core.MopValueType{}
		for _, mop := range *op.Value {
			if !mop.IsAppend() && !mop.IsWrite() {
				continue
			}
			realKey := mop.GetKey()
			if lastValue, exists := final[realKey]; exists {
				if _, ok := im[realKey]; !ok {
					im[realKey] = make(map[core.MopValueType]*core.Op)
				}
				im[realKey][lastValue] = &history[idx]
			}
			final[realKey] = mop.GetValue()
		}
	}

	return im
}

// FailedWrites collects writes of ops that definitely aborted:
// map[key](map[aborted-value]op). A read observing one of these saw state
// that never committed.
func FailedWrites(history core.History) map[string]map[core.MopValueType]*core.Op {
	failed := map[string]map[core.MopValueType]*core.Op{}

	for idx := range history {
		op := &history[idx]
		if op.Type != core.OpTypeFail || op.Value == nil {
			continue
		}
		for _, mop := range *op.Value {
			if !mop.IsAppend() && !mop.IsWrite() {
				continue
			}
			realKey := mop.GetKey()
			if _, ok := failed[realKey]; !ok {
				failed[realKey] = make(map[core.MopValueType]*core.Op)
			}
			failed[realKey][mop.GetValue()] = op
		}
	}
	return failed
}

// prohibitedAnomalyTypes expands the requested models and anomalies to the
// full set whose presence must invalidate the history.
func prohibitedAnomalyTypes(models []core.ConsistencyModelName, anomalies []string) map[string]struct{} {
	if len(models) == 0 && len(anomalies) == 0 {
		models = []core.ConsistencyModelName{"strict-serializable"}
	}
	prohibited := append(core.AllAnomaliesImplying(anomalies), core.AnomaliesProhibitedBy(models)...)
	res := map[string]struct{}{}
	for _, a := range prohibited {
		res[a] = struct{}{}
	}
	return res
}

// signalAnomalyTypes never invalidate a history on their own but, unless
// allow-listed, keep it from being certified valid.
var signalAnomalyTypes = map[string]struct{}{
	"empty-dependency-graph": {},
	"unseen":                 {},
	"divergence":             {},
}

// ResultMap folds the found anomalies into a verdict under opts. Every found
// anomaly type is reported; the allow list only decides whether a finding may
// count against the verdict. A history is valid when nothing outside the
// allow list was found.
func ResultMap(opts Opts, anomalies core.Anomalies) CheckResult {
	if len(anomalies) == 0 {
		return CheckResult{Valid: true}
	}
	allowed := map[string]struct{}{}
	for _, a := range opts.AllowedAnomalies {
		allowed[a] = struct{}{}
	}

	bad := anomalies.SelectKeys(prohibitedAnomalyTypes(opts.ConsistencyModels, opts.Anomalies))
	var disallowed []string
	for _, k := range bad.Keys() {
		if _, ok := allowed[k]; !ok {
			disallowed = append(disallowed, k)
		}
	}
	unknownSignal := false
	for k := range anomalies {
		if _, ok := allowed[k]; ok {
			continue
		}
		if _, ok := signalAnomalyTypes[k]; ok {
			unknownSignal = true
		}
	}

	cr := CheckResult{
		AnomalyTypes:           anomalies.Keys(),
		DisallowedAnomalyTypes: disallowed,
		Anomalies:              anomalies,
	}
	switch {
	case len(disallowed) != 0:
	case unknownSignal:
		cr.IsUnknown = true
	default:
		cr.Valid = true
	}
	cr.Not, cr.AlsoNot = core.FriendlyBoundary(anomalies.Keys())
	return cr
}

func setKeys(m map[core.Rel]struct{}) []core.Rel {
	var rels []core.Rel
	for k := range m {
		rels = append(rels, k)
	}
	sort.Sort(core.RelSet(rels))
	return rels
}

func arrayHash(sset []core.Rel) uint32 {
	h := fnv.New32a()
	for _, v := range sset {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	return h.Sum32()
}

// FilteredGraphs memoizes relationship projections of graph keyed by the
// sorted rel set.
func FilteredGraphs(graph *core.DirectedGraph) FilterGraphFn {
	memo := map[uint32]*core.DirectedGraph{}

	return func(rels []core.Rel) *core.DirectedGraph {
		sort.Sort(core.RelSet(rels))
		v := arrayHash(rels)
		if g, e := memo[v]; e {
			return g
		}
		g := graph.FilterRelationships(rels)
		if g != nil {
			memo[v] = g
		}
		return g
	}
}
