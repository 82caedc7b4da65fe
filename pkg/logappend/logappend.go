// Package logappend checks histories over log-structured keys, where every
// write appends a value at an offset and every read polls a window of
// [offset value] pairs. Dependency graphs are inferred from per-key version
// orders and combined with process and realtime orders before cycle
// detection.
package logappend

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/pingcap/tichecker/pkg/core"
	"github.com/pingcap/tichecker/pkg/versionorder"
)

// writeIdx maps key -> value -> the op that appended it. Only Ok and Info
// ops count: a Fail op definitely did not write.
type writeIdx map[string]map[int]core.Op

// readIdx maps key -> value -> the Ok ops that observed it.
type readIdx map[string]map[int][]core.Op

func writeIndex(history core.History) (writeIdx, error) {
	wi := writeIdx{}
	for _, op := range history {
		if op.Type != core.OpTypeOk && op.Type != core.OpTypeInfo {
			continue
		}
		if op.Value == nil {
			continue
		}
		for _, mop := range *op.Value {
			app, ok := mop.(core.Append)
			if !ok {
				continue
			}
			if wi[app.Key] == nil {
				wi[app.Key] = map[int]core.Op{}
			}
			if prev, dup := wi[app.Key][app.Value]; dup && prev.Index != op.Index {
				return nil, errors.Errorf("duplicate writer for key %s value %d: op %s and op %s",
					app.Key, app.Value, prev.String(), op.String())
			}
			wi[app.Key][app.Value] = op
		}
	}
	return wi, nil
}

func readIndex(history core.History) readIdx {
	ri := readIdx{}
	for _, op := range history {
		if op.Type != core.OpTypeOk || op.Value == nil {
			continue
		}
		for _, mop := range *op.Value {
			read, ok := mop.(core.Read)
			if !ok {
				continue
			}
			if ri[read.Key] == nil {
				ri[read.Key] = map[int][]core.Op{}
			}
			for _, pair := range read.Pairs {
				ri[read.Key][pair.Value] = append(ri[read.Key][pair.Value], op)
			}
		}
	}
	return ri
}

// MissingWriterError reports an ordered value no op ever wrote. It means the
// version-order builder and the graph analyzers disagree about what was
// written, so analysis cannot continue.
type MissingWriterError struct {
	Key   string
	Value int
}

// Error ...
func (e MissingWriterError) Error() string {
	return fmt.Sprintf("no writer for key %s value %d in version order", e.Key, e.Value)
}

// checkWriters verifies every placed value has a writer before any graph is
// built.
func checkWriters(orders *versionorder.Orders, wi writeIdx) error {
	for _, key := range sortedOrderKeys(orders) {
		for _, v := range orders.Keys[key].ByIndex {
			if _, ok := wi[key][v]; !ok {
				return errors.Trace(MissingWriterError{Key: key, Value: v})
			}
		}
	}
	return nil
}

// appendMopIndex returns the position of the append of value to key inside
// op, or -1.
func appendMopIndex(op core.Op, key string, value int) int {
	if op.Value == nil {
		return -1
	}
	for i, mop := range *op.Value {
		if app, ok := mop.(core.Append); ok && app.Key == key && app.Value == value {
			return i
		}
	}
	return -1
}

// readMopIndex returns the position of a read of key inside op observing
// value, or -1. With wantValue < 0 any read of key matches.
func readMopIndex(op core.Op, key string, wantValue int) int {
	if op.Value == nil {
		return -1
	}
	for i, mop := range *op.Value {
		read, ok := mop.(core.Read)
		if !ok || read.Key != key {
			continue
		}
		if wantValue < 0 {
			return i
		}
		for _, pair := range read.Pairs {
			if pair.Value == wantValue {
				return i
			}
		}
	}
	return -1
}

// finalRead returns the latest version of key that op observed, in version
// order. ok is false when op never read key. When op read key but saw
// nothing, value is absent and empty is true.
func finalRead(op core.Op, key string, order *versionorder.KeyOrder) (value int, empty bool, ok bool) {
	if op.Value == nil {
		return 0, false, false
	}
	best := -1
	sawRead := false
	for _, mop := range *op.Value {
		read, isRead := mop.(core.Read)
		if !isRead || read.Key != key {
			continue
		}
		sawRead = true
		for _, pair := range read.Pairs {
			if i, placed := order.IndexOf(pair.Value); placed && i > best {
				best = i
			}
		}
	}
	if !sawRead {
		return 0, false, false
	}
	if best < 0 {
		return 0, true, true
	}
	return order.ByIndex[best], false, true
}

type wwExplainResult struct {
	Key       string
	PreValue  int
	Value     int
	AMopIndex int
	BMopIndex int
}

// Type ...
func (wwExplainResult) Type() core.DependType { return core.WWDepend }

// wwExplainer explains write-write dependencies through adjacent versions.
type wwExplainer struct {
	orders *versionorder.Orders
	wi     writeIdx
}

func (w *wwExplainer) ExplainPairData(a, b core.PathType) core.ExplainResult {
	for _, key := range sortedOrderKeys(w.orders) {
		order := w.orders.Keys[key]
		for i := 0; i+1 < len(order.ByIndex); i++ {
			v1, v2 := order.ByIndex[i], order.ByIndex[i+1]
			ai := appendMopIndex(a, key, v1)
			bi := appendMopIndex(b, key, v2)
			if ai >= 0 && bi >= 0 {
				return wwExplainResult{Key: key, PreValue: v1, Value: v2, AMopIndex: ai, BMopIndex: bi}
			}
		}
	}
	return nil
}

func (w *wwExplainer) RenderExplanation(result core.ExplainResult, preName, postName string) string {
	if result.Type() != core.WWDepend {
		return ""
	}
	er := result.(wwExplainResult)
	return fmt.Sprintf("%s appended %d to %s directly before %s appended %d",
		preName, er.PreValue, er.Key, postName, er.Value)
}

// WWGraph links the writer of each version to the writer of the next version
// of the same key.
func WWGraph(orders *versionorder.Orders, wi writeIdx) core.Analyzer {
	return func(history core.History) (core.Anomalies, *core.DirectedGraph, core.DataExplainer) {
		g := core.NewDirectedGraph()
		for _, key := range sortedOrderKeys(orders) {
			order := orders.Keys[key]
			for i := 0; i+1 < len(order.ByIndex); i++ {
				v1, v2 := order.ByIndex[i], order.ByIndex[i+1]
				w1, ok1 := wi[key][v1]
				w2, ok2 := wi[key][v2]
				if !ok1 || !ok2 {
					continue
				}
				if w1.Index == w2.Index {
					continue
				}
				g.Link(core.Vertex{Value: w1}, core.Vertex{Value: w2}, core.WW)
			}
		}
		return core.Anomalies{}, g, &wwExplainer{orders: orders, wi: wi}
	}
}

type wrExplainResult struct {
	Key       string
	Value     int
	AMopIndex int
	BMopIndex int
}

// Type ...
func (wrExplainResult) Type() core.DependType { return core.WRDepend }

// wrExplainer explains write-read dependencies.
type wrExplainer struct {
	orders *versionorder.Orders
	wi     writeIdx
}

func (w *wrExplainer) ExplainPairData(a, b core.PathType) core.ExplainResult {
	if b.Value == nil {
		return nil
	}
	for bi, mop := range *b.Value {
		read, ok := mop.(core.Read)
		if !ok {
			continue
		}
		for _, pair := range read.Pairs {
			writer, ok := w.wi[read.Key][pair.Value]
			if !ok || writer.Index != a.Index {
				continue
			}
			ai := appendMopIndex(a, read.Key, pair.Value)
			if ai < 0 {
				continue
			}
			return wrExplainResult{Key: read.Key, Value: pair.Value, AMopIndex: ai, BMopIndex: bi}
		}
	}
	return nil
}

func (w *wrExplainer) RenderExplanation(result core.ExplainResult, preName, postName string) string {
	if result.Type() != core.WRDepend {
		return ""
	}
	er := result.(wrExplainResult)
	return fmt.Sprintf("%s observed %s's append of %d to key %s",
		postName, preName, er.Value, er.Key)
}

// WRGraph links each writer to every reader that observed its value,
// excluding self-edges.
func WRGraph(orders *versionorder.Orders, wi writeIdx, ri readIdx) core.Analyzer {
	return func(history core.History) (core.Anomalies, *core.DirectedGraph, core.DataExplainer) {
		g := core.NewDirectedGraph()
		for _, key := range sortedIdxKeys(ri) {
			for _, v := range sortedValueKeys(ri[key]) {
				writer, ok := wi[key][v]
				if !ok {
					continue
				}
				for _, reader := range ri[key][v] {
					if reader.Index == writer.Index {
						continue
					}
					g.Link(core.Vertex{Value: writer}, core.Vertex{Value: reader}, core.WR)
				}
			}
		}
		return core.Anomalies{}, g, &wrExplainer{orders: orders, wi: wi}
	}
}

type rwExplainResult struct {
	Key       string
	ReadValue core.IntOptional
	Value     int
	AMopIndex int
	BMopIndex int
}

// Type ...
func (rwExplainResult) Type() core.DependType { return core.RWDepend }

// rwExplainer explains read-write anti-dependencies.
type rwExplainer struct {
	orders *versionorder.Orders
	wi     writeIdx
}

func (r *rwExplainer) ExplainPairData(a, b core.PathType) core.ExplainResult {
	for _, key := range sortedOrderKeys(r.orders) {
		order := r.orders.Keys[key]
		v, empty, ok := finalRead(a, key, order)
		if !ok {
			continue
		}
		var next int
		if empty {
			if len(order.ByIndex) == 0 {
				continue
			}
			next = order.ByIndex[0]
		} else {
			n, has := order.NextValue(v)
			if !has {
				continue
			}
			next = n
		}
		writer, has := r.wi[key][next]
		if !has || writer.Index != b.Index {
			continue
		}
		bi := appendMopIndex(b, key, next)
		ai := readMopIndex(a, key, -1)
		if ai < 0 || bi < 0 {
			continue
		}
		res := rwExplainResult{Key: key, Value: next, AMopIndex: ai, BMopIndex: bi}
		if !empty {
			res.ReadValue = core.NewOptInt(v)
		}
		return res
	}
	return nil
}

func (r *rwExplainer) RenderExplanation(result core.ExplainResult, preName, postName string) string {
	if result.Type() != core.RWDepend {
		return ""
	}
	er := result.(rwExplainResult)
	if er.ReadValue.Present() {
		return fmt.Sprintf("%s read key %s up to %d, which %s overwrote by appending %d",
			preName, er.Key, er.ReadValue.MustGet(), postName, er.Value)
	}
	return fmt.Sprintf("%s read key %s before any append, and %s appended the first value %d",
		preName, er.Key, postName, er.Value)
}

// RWGraph links each reader to the writer of the version directly after the
// final version that reader observed. Earlier reads give no edge: the
// transaction may have observed later state too.
func RWGraph(orders *versionorder.Orders, wi writeIdx) core.Analyzer {
	return func(history core.History) (core.Anomalies, *core.DirectedGraph, core.DataExplainer) {
		g := core.NewDirectedGraph()
		for _, op := range core.FilterOkHistory(history) {
			if op.Value == nil {
				continue
			}
			for _, key := range opReadKeys(op) {
				order := orders.Key(key)
				if order == nil {
					continue
				}
				v, empty, ok := finalRead(op, key, order)
				if !ok {
					continue
				}
				var next int
				if empty {
					if len(order.ByIndex) == 0 {
						continue
					}
					next = order.ByIndex[0]
				} else {
					n, has := order.NextValue(v)
					if !has {
						continue
					}
					next = n
				}
				writer, has := wi[key][next]
				if !has || writer.Index == op.Index {
					continue
				}
				g.Link(core.Vertex{Value: op}, core.Vertex{Value: writer}, core.RW)
			}
		}
		return core.Anomalies{}, g, &rwExplainer{orders: orders, wi: wi}
	}
}

func opReadKeys(op core.Op) []string {
	seen := map[string]struct{}{}
	var keys []string
	for _, mop := range *op.Value {
		if read, ok := mop.(core.Read); ok {
			if _, dup := seen[read.Key]; !dup {
				seen[read.Key] = struct{}{}
				keys = append(keys, read.Key)
			}
		}
	}
	return keys
}
