package txn

import (
	"sort"

	"github.com/pingcap/tichecker/pkg/core"
)

// Opts selects what to look for and what to tolerate.
type Opts struct {
	// ConsistencyModels are the models the history is expected to satisfy.
	// When both this and Anomalies are empty, strict-serializable is
	// assumed.
	ConsistencyModels []core.ConsistencyModelName
	// Anomalies are additional anomaly names to check for.
	Anomalies []string
	// AllowedAnomalies are anomaly names that may appear without
	// invalidating the history. They are still reported.
	AllowedAnomalies []string
}

// CheckResult is the verdict over one history.
type CheckResult struct {
	// Valid/IsUnknown: valid, unknown (only unclassifiable signals), or
	// invalid.
	IsUnknown bool
	Valid     bool
	// AnomalyTypes names every reportable anomaly found.
	AnomalyTypes []string
	// DisallowedAnomalyTypes is the subset of AnomalyTypes that made the
	// verdict invalid.
	DisallowedAnomalyTypes []string
	Anomalies              core.Anomalies
	// CycleExplanations holds one rendered proof per nontrivial SCC.
	CycleExplanations []string
	Not, AlsoNot      []string
}

// Cycles runs an analyzer over a history and augments the found anomalies
// with classified cycles.
func Cycles(analyzer core.Analyzer, history core.History) core.CheckResult {
	checkedResult := core.Check(analyzer, history)
	cases := CycleCases(checkedResult.Graph, checkedResult.Explainer, checkedResult.Sccs)
	for k, v := range cases {
		for _, c := range v {
			checkedResult.Anomalies[k] = append(checkedResult.Anomalies[k], c)
		}
	}
	return checkedResult
}

// CycleCase is one classified cycle: the cycle itself plus the edge
// explanations proving it.
type CycleCase struct {
	Circle core.Circle
	Steps  []core.Step
	Typ    string
}

// IAnomaly ...
func (CycleCase) IAnomaly() {}

// String ...
func (c CycleCase) String() string {
	return c.Circle.String()
}

// CycleCases classifies the cycles of every SCC.
func CycleCases(graph *core.DirectedGraph, pairExplainer core.DataExplainer, sccs []core.SCC) map[string][]CycleCase {
	filterGraph := FilteredGraphs(graph)
	cases := map[string][]CycleCase{}
	for _, scc := range sccs {
		for _, c := range CycleCasesInScc(graph, filterGraph, pairExplainer, scc) {
			cases[c.Typ] = append(cases[c.Typ], c)
		}
	}
	return cases
}

// FilterGraphFn memoizes relationship-filtered projections of one graph.
type FilterGraphFn = func(rels []core.Rel) *core.DirectedGraph

// CycleCasesInScc searches a single SCC for each anomaly spec, strictest
// first. Specs run in sorted-name order so reruns classify identically.
func CycleCasesInScc(graph *core.DirectedGraph, filterGraph FilterGraphFn, explainer core.DataExplainer, scc core.SCC) []CycleCase {
	var cases []CycleCase
	for _, name := range cycleAnomalyNames() {
		spec := CycleAnomalySpecs[name]
		var cycle *core.Circle
		if spec.Rels != nil {
			runtimeGraph := filterGraph(setKeys(spec.Rels))
			cycle = core.NewCircle(core.FindCycle(runtimeGraph, scc))
		} else {
			searchGraph := filterGraph(append(setKeys(spec.RestRels), spec.FirstRel))
			cycle = core.NewCircle(core.FindCycleStartingWith(searchGraph, scc, spec.FirstRel, setKeys(spec.RestRels)))
		}
		if cycle == nil {
			continue
		}

		var ex core.CycleExplainer
		res := ex.ExplainCycle(explainer, *cycle)
		c := CycleCase{Circle: res.Circle, Steps: res.Steps, Typ: name}
		if spec.FilterEx != nil && !spec.FilterEx(graph, &c) {
			continue
		}
		cases = append(cases, c)
	}
	return cases
}

func cycleAnomalyNames() []string {
	names := make([]string, 0, len(CycleAnomalySpecs))
	for name := range CycleAnomalySpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
