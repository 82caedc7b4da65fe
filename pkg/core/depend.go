package core

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// DataExplainer justifies edges of one analyzer's graph.
type DataExplainer interface {
	// ExplainPairData explains why b depends on a, as a data structure.
	// Returns nil if b does not depend on a.
	ExplainPairData(a, b PathType) ExplainResult
	// RenderExplanation renders an explanation produced by this explainer,
	// using short names for the two operations.
	RenderExplanation(result ExplainResult, preName, postName string) string
}

// DependType tags which kind of dependency an explanation describes.
type DependType string

// DependType enums
const (
	RealtimeDepend  DependType = "realtime"
	MonotonicDepend DependType = "monotonic-key"
	ProcessDepend   DependType = "process"
	WWDepend        DependType = "ww"
	WRDepend        DependType = "wr"
	RWDepend        DependType = "rw"
)

// ExplainResult is a structured justification for one edge.
type ExplainResult interface {
	Type() DependType
}

// CombinedExplainer dispatches to the first of its sub-explainers that can
// justify an edge. The winning index rides on the result so rendering goes
// back to the same sub-explainer.
type CombinedExplainer struct {
	Explainers []DataExplainer
}

// CombineExplainResult pairs an explanation with the index of the explainer
// that produced it.
type CombineExplainResult struct {
	Index  int
	Result ExplainResult
}

// Type ...
func (c CombineExplainResult) Type() DependType {
	return c.Result.Type()
}

// ExplainPairData asks each sub-explainer in order.
func (c *CombinedExplainer) ExplainPairData(a, b PathType) ExplainResult {
	for i, explainer := range c.Explainers {
		if result := explainer.ExplainPairData(a, b); result != nil {
			return CombineExplainResult{Index: i, Result: result}
		}
	}
	return nil
}

// RenderExplanation routes rendering to the sub-explainer that produced the
// result.
func (c *CombinedExplainer) RenderExplanation(result ExplainResult, preName, postName string) string {
	combined := result.(CombineExplainResult)
	return c.Explainers[combined.Index].RenderExplanation(combined.Result, preName, postName)
}

// Combine composes analyzers: graphs union, explainers chain, anomalies
// merge without loss.
func Combine(analyzers ...Analyzer) Analyzer {
	return func(history History) (Anomalies, *DirectedGraph, DataExplainer) {
		var (
			combinedAnomalies = make(Anomalies)
			combinedGraph     = NewDirectedGraph()
			explainers        []DataExplainer
		)
		for _, analyzer := range analyzers {
			anomalies, graph, explainer := analyzer(history)
			if graph == nil {
				panic("analyzer returned a nil graph")
			}
			combinedAnomalies.Merge(anomalies)
			combinedGraph = DigraphUnion(combinedGraph, graph)
			explainers = append(explainers, explainer)
		}
		return combinedAnomalies, combinedGraph, &CombinedExplainer{Explainers: explainers}
	}
}

// ProcessDependent ...
type ProcessDependent struct {
	Process int
}

// Type ...
func (ProcessDependent) Type() DependType { return ProcessDepend }

// ProcessExplainer ...
type ProcessExplainer struct{}

// ExplainPairData ...
func (e ProcessExplainer) ExplainPairData(a, b PathType) ExplainResult {
	if !a.Process.Present() || !b.Process.Present() {
		return nil
	}
	if a.Process.MustGet() == b.Process.MustGet() && a.Index.MustGet() < b.Index.MustGet() {
		return ProcessDependent{Process: a.Process.MustGet()}
	}
	return nil
}

// RenderExplanation ...
func (e ProcessExplainer) RenderExplanation(result ExplainResult, preName, postName string) string {
	if result.Type() != ProcessDepend {
		log.Panic("unexpected explain result type", zap.String("type", string(result.Type())))
	}
	res := result.(ProcessDependent)
	return fmt.Sprintf("process %d executed %s before %s", res.Process, preName, postName)
}

// RealtimeDependent ...
type RealtimeDependent struct {
	PreEnd    Op
	PostStart Op
}

// Type ...
func (RealtimeDependent) Type() DependType { return RealtimeDepend }

// RealtimeExplainer explains real-time precedence using the pair index of
// the history the graph was built from.
type RealtimeExplainer struct {
	pairs   []int
	history History
}

// ExplainPairData ...
func (r RealtimeExplainer) ExplainPairData(preEnd, postEnd PathType) ExplainResult {
	pos := -1
	for i := range r.history {
		if r.history[i] == postEnd {
			pos = i
			break
		}
	}
	if pos < 0 || r.pairs[pos] < 0 {
		return nil
	}
	postStart := r.history[r.pairs[pos]]
	if !preEnd.Index.Present() || !postStart.Index.Present() {
		return nil
	}
	if preEnd.Index.MustGet() < postStart.Index.MustGet() {
		return RealtimeDependent{PreEnd: preEnd, PostStart: postStart}
	}
	return nil
}

// RenderExplanation ...
func (r RealtimeExplainer) RenderExplanation(result ExplainResult, preName, postName string) string {
	if result.Type() != RealtimeDepend {
		log.Panic("unexpected explain result type", zap.String("type", string(result.Type())))
	}
	res := result.(RealtimeDependent)
	s := fmt.Sprintf("%s completed at index %d, ", preName, res.PreEnd.Index.MustGet())
	if !res.PostStart.Time.IsZero() && !res.PreEnd.Time.IsZero() {
		t1, t2 := res.PreEnd.Time, res.PostStart.Time
		if t1.Before(t2) {
			s += fmt.Sprintf("%.3f seconds ", t2.Sub(t1).Seconds())
		}
	}
	s += fmt.Sprintf("before the invocation of %s at index %d", postName, res.PostStart.Index.MustGet())
	return s
}

// MonotonicDependent ...
type MonotonicDependent struct {
	Key       string
	PrevValue int
	Value     int
}

// Type ...
func (MonotonicDependent) Type() DependType { return MonotonicDepend }

// MonotonicKeyExplainer ...
type MonotonicKeyExplainer struct{}

func firstObservations(op PathType) map[string]int {
	obs := map[string]int{}
	if op.Value == nil {
		return obs
	}
	for _, mop := range *op.Value {
		if _, seen := obs[mop.GetKey()]; seen {
			continue
		}
		if v, ok := mop.GetValue().(int); ok {
			obs[mop.GetKey()] = v
		}
	}
	return obs
}

// ExplainPairData ...
func (e MonotonicKeyExplainer) ExplainPairData(a, b PathType) ExplainResult {
	bObs := firstObservations(b)
	for key, av := range firstObservations(a) {
		if bv, ok := bObs[key]; ok && av < bv {
			return MonotonicDependent{Key: key, PrevValue: av, Value: bv}
		}
	}
	return nil
}

// RenderExplanation ...
func (e MonotonicKeyExplainer) RenderExplanation(result ExplainResult, preName, postName string) string {
	if result.Type() != MonotonicDepend {
		log.Panic("unexpected explain result type", zap.String("type", string(result.Type())))
	}
	res := result.(MonotonicDependent)
	return fmt.Sprintf("%s observed %s = %d, which must precede %s = %d observed by %s",
		preName, res.Key, res.PrevValue, res.Key, res.Value, postName)
}

// CycleExplainerResult is an explained cycle.
type CycleExplainerResult struct {
	Circle Circle
	Steps  []Step
	Typ    DependType
}

// ICycleExplainer explains a whole cycle step by step.
type ICycleExplainer interface {
	ExplainCycle(pairExplainer DataExplainer, circle Circle) CycleExplainerResult
	RenderCycleExplanation(explainer DataExplainer, cr CycleExplainerResult) string
}

// CycleExplainer narrates a cycle as a chain of pairwise explanations.
type CycleExplainer struct{}

// ExplainCycle explains every consecutive edge of the cycle. An edge the
// pair explainer cannot justify means an analyzer emitted a dependency its
// explainer disowns; that is a structural bug, so we refuse to continue.
func (c *CycleExplainer) ExplainCycle(explainer DataExplainer, circle Circle) CycleExplainerResult {
	var steps []Step
	for i := 1; i < len(circle.Path); i++ {
		result := explainer.ExplainPairData(circle.Path[i-1], circle.Path[i])
		if result == nil {
			log.Panic("cannot explain a reported edge",
				zap.String("from", circle.Path[i-1].String()),
				zap.String("to", circle.Path[i].String()))
		}
		steps = append(steps, Step{Result: result})
	}
	return CycleExplainerResult{Circle: circle, Steps: steps}
}

// OpBinding names one op of a cycle.
type OpBinding struct {
	Operation Op
	Name      string
}

// RenderCycleExplanation ...
func (c *CycleExplainer) RenderCycleExplanation(explainer DataExplainer, cr CycleExplainerResult) string {
	var bindings []OpBinding
	for i, v := range cr.Circle.Path[:len(cr.Circle.Path)-1] {
		bindings = append(bindings, OpBinding{Operation: v, Name: fmt.Sprintf("T%d", i+1)})
	}
	return explainBindings(bindings) + "\n\nThen:\n" + explainCycleOps(explainer, bindings, cr.Steps)
}

// explainBindings constructs a string naming each op of the cycle.
func explainBindings(bindings []OpBinding) string {
	seq := []string{"Let:"}
	for _, v := range bindings {
		seq = append(seq, fmt.Sprintf("  %s = %s", v.Name, v.Operation.String()))
	}
	return strings.Join(seq, "\n")
}

func explainCycleOps(pairExplainer DataExplainer, bindings []OpBinding, steps []Step) string {
	var explanations []string
	for i := 0; i < len(steps); i++ {
		pre := bindings[i]
		post := bindings[(i+1)%len(bindings)]
		explanations = append(explanations, fmt.Sprintf("%s < %s, because %s", pre.Name, post.Name,
			pairExplainer.RenderExplanation(steps[i].Result, pre.Name, post.Name)))
	}
	for idx, ex := range explanations {
		if idx == len(explanations)-1 {
			explanations[idx] = fmt.Sprintf("  - However, %s: a contradiction!", ex)
		} else {
			explanations[idx] = fmt.Sprintf("  - %s.", ex)
		}
	}
	return strings.Join(explanations, "\n")
}

func explainSCC(g *DirectedGraph, cycleExplainer ICycleExplainer, pairExplainer DataExplainer, scc SCC) string {
	cycle := NewCircle(FindCycle(g, scc))
	if cycle == nil {
		log.Panic("no cycle found in a non-trivial SCC")
	}
	cr := cycleExplainer.ExplainCycle(pairExplainer, *cycle)
	return cycleExplainer.RenderCycleExplanation(pairExplainer, cr)
}

// WriteCycles dumps rendered cycle explanations under dir, one file per
// cycle. Failures are logged and skipped: the dump is a side channel and
// never fails the analysis.
func WriteCycles(dir string, cycles []string) {
	if dir == "" || len(cycles) == 0 {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn("cannot create cycle dump directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	for i, cycle := range cycles {
		name := filepath.Join(dir, fmt.Sprintf("cycle-%d.txt", i))
		if err := ioutil.WriteFile(name, []byte(cycle+"\n"), 0644); err != nil {
			log.Warn("cannot write cycle dump", zap.String("file", name), zap.Error(err))
		}
	}
}
