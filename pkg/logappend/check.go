package logappend

import (
	"context"

	"github.com/juju/errors"

	"github.com/pingcap/tichecker/pkg/core"
	"github.com/pingcap/tichecker/pkg/sched"
	"github.com/pingcap/tichecker/pkg/txn"
	"github.com/pingcap/tichecker/pkg/versionorder"
)

// Analyzer names accepted by CheckOpts.Analyzers.
const (
	AnalyzerWW       = "ww"
	AnalyzerWR       = "wr"
	AnalyzerRW       = "rw"
	AnalyzerProcess  = "process"
	AnalyzerRealtime = "realtime"
)

func defaultAnalyzers() []string {
	return []string{AnalyzerWW, AnalyzerWR, AnalyzerRW, AnalyzerProcess, AnalyzerRealtime}
}

// CheckOpts configures one analysis run.
type CheckOpts struct {
	txn.Opts
	// Analyzers picks the relationship analyzers; empty means all of them.
	Analyzers []string
	// Directory, when set, receives rendered cycle explanations and one
	// SVG per offending component.
	Directory string
	// Workers bounds the scheduler's parallelism.
	Workers int
}

// Check analyzes a log-append history end to end: version orders, dependency
// graphs, cycle classification, direct case scans, verdict. Structural
// contract violations (a placed value without a writer) abort with an error;
// everything else comes back as data.
func Check(opts CheckOpts, history core.History) (txn.CheckResult, error) {
	history = core.FilterOutNemesisHistory(history)
	history.AttachIndexIfNoExists()
	if len(opts.Analyzers) == 0 {
		opts.Analyzers = defaultAnalyzers()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 4
	}

	g := sched.NewGraph()
	g.MustAdd(sched.Task{
		Name: "version-orders",
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			return versionorder.BuildSharded(history, workers), nil
		},
	})
	g.MustAdd(sched.Task{
		Name: "write-index",
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			wi, err := writeIndex(history)
			return wi, errors.Trace(err)
		},
	})
	g.MustAdd(sched.Task{
		Name: "read-index",
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			return readIndex(history), nil
		},
	})
	g.MustAdd(sched.Task{
		Name: "check-writers",
		Deps: []string{"version-orders", "write-index"},
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			orders := deps["version-orders"].(*versionorder.Orders)
			wi := deps["write-index"].(writeIdx)
			return nil, errors.Trace(checkWriters(orders, wi))
		},
	})
	g.MustAdd(sched.Task{
		Name: "analysis",
		Deps: []string{"version-orders", "write-index", "read-index", "check-writers"},
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			orders := deps["version-orders"].(*versionorder.Orders)
			wi := deps["write-index"].(writeIdx)
			ri := deps["read-index"].(readIdx)
			analyzers, err := pickAnalyzers(opts.Analyzers, orders, wi, ri)
			if err != nil {
				return nil, errors.Trace(err)
			}
			res := txn.Cycles(core.Combine(analyzers...), history)
			return &res, nil
		},
	})
	g.MustAdd(sched.Task{
		Name: "g1a",
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			return g1aCases(history), nil
		},
	})
	g.MustAdd(sched.Task{
		Name: "g1b",
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			return g1bCases(history), nil
		},
	})
	g.MustAdd(sched.Task{
		Name: "internal",
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			return internalCases(history), nil
		},
	})
	g.MustAdd(sched.Task{
		Name: "duplicate",
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			return duplicateReadCases(history), nil
		},
	})
	g.MustAdd(sched.Task{
		Name: "non-monotonic-read",
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			return nonMonotonicReadCases(history), nil
		},
	})
	g.MustAdd(sched.Task{
		Name: "lost-write",
		Deps: []string{"version-orders", "write-index", "read-index", "check-writers"},
		Run: func(ctx context.Context, deps map[string]interface{}) (interface{}, error) {
			orders := deps["version-orders"].(*versionorder.Orders)
			wi := deps["write-index"].(writeIdx)
			ri := deps["read-index"].(readIdx)
			return lostWriteCases(orders, wi, ri), nil
		},
	})

	results, err := g.Run(context.Background(), workers)
	if err != nil {
		return txn.CheckResult{}, errors.Trace(err)
	}

	orders := results["version-orders"].(*versionorder.Orders)
	analysis := results["analysis"].(*core.CheckResult)

	anomalies := make(core.Anomalies)
	anomalies.Merge(orders.Anomalies)
	anomalies.Merge(analysis.Anomalies)
	for name, task := range map[string]string{
		"G1a":                "g1a",
		"G1b":                "g1b",
		"internal":           "internal",
		"duplicate":          "duplicate",
		"non-monotonic-read": "non-monotonic-read",
		"lost-write":         "lost-write",
	} {
		if cases, _ := results[task].([]core.Anomaly); len(cases) > 0 {
			anomalies[name] = append(anomalies[name], cases...)
		}
	}
	if analysis.Graph.EdgeCount() == 0 {
		anomalies["empty-dependency-graph"] = append(anomalies["empty-dependency-graph"],
			emptyDependencyGraph{})
	}

	result := txn.ResultMap(opts.Opts, anomalies)
	result.CycleExplanations = analysis.Cycles

	if opts.Directory != "" {
		core.WriteCycles(opts.Directory, analysis.Cycles)
		plotAnalysis(*analysis, opts.Directory)
	}
	return result, nil
}

func pickAnalyzers(names []string, orders *versionorder.Orders, wi writeIdx, ri readIdx) ([]core.Analyzer, error) {
	var analyzers []core.Analyzer
	for _, name := range names {
		switch name {
		case AnalyzerWW:
			analyzers = append(analyzers, WWGraph(orders, wi))
		case AnalyzerWR:
			analyzers = append(analyzers, WRGraph(orders, wi, ri))
		case AnalyzerRW:
			analyzers = append(analyzers, RWGraph(orders, wi))
		case AnalyzerProcess:
			analyzers = append(analyzers, core.ProcessGraph)
		case AnalyzerRealtime:
			analyzers = append(analyzers, core.RealtimeGraph)
		default:
			return nil, errors.Errorf("unknown analyzer %s", name)
		}
	}
	return analyzers, nil
}

type emptyDependencyGraph struct{}

// IAnomaly ...
func (emptyDependencyGraph) IAnomaly() {}

// String ...
func (emptyDependencyGraph) String() string {
	return "(EmptyDependencyGraph) the combined dependency graph has no edges; check the analyzer set"
}
