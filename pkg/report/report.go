// Package report summarizes a history's latency profile for the CLI output.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codahale/hdrhistogram"

	"github.com/pingcap/tichecker/pkg/core"
)

const maxLatencyUs = 60 * 1000 * 1000

// LatencyReport holds one latency distribution per operation class.
type LatencyReport struct {
	hists map[string]*hdrhistogram.Histogram
}

// opClass partitions ops by the micro-op kinds they carry.
func opClass(op core.Op) string {
	if op.Value == nil || len(*op.Value) == 0 {
		return "empty"
	}
	reads, writes := false, false
	for _, mop := range *op.Value {
		if mop.IsRead() {
			reads = true
		} else {
			writes = true
		}
	}
	switch {
	case reads && writes:
		return "mixed"
	case reads:
		return "read"
	default:
		return "write"
	}
}

// Latencies measures invoke-to-completion durations across the history.
// Invocations without a completion are skipped.
func Latencies(history core.History) *LatencyReport {
	r := &LatencyReport{hists: map[string]*hdrhistogram.Histogram{}}
	pairs := history.PairIndex()
	for i, op := range history {
		if op.Type != core.OpTypeInvoke || pairs[i] < 0 {
			continue
		}
		completion := history[pairs[i]]
		dur := completion.Time.Sub(op.Time).Microseconds()
		if dur < 0 {
			continue
		}
		if dur > maxLatencyUs {
			dur = maxLatencyUs
		}
		class := opClass(completion)
		hist, ok := r.hists[class]
		if !ok {
			hist = hdrhistogram.New(0, maxLatencyUs, 3)
			r.hists[class] = hist
		}
		hist.RecordValue(dur)
	}
	return r
}

// Render formats the report, one line per operation class.
func (r *LatencyReport) Render() string {
	classes := make([]string, 0, len(r.hists))
	for class := range r.hists {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	var lines []string
	for _, class := range classes {
		hist := r.hists[class]
		lines = append(lines, fmt.Sprintf("%-5s count %d mean %d(us) p50 %d(us) p99 %d(us) max %d(us)",
			class, hist.TotalCount(), int64(hist.Mean()),
			hist.ValueAtQuantile(50), hist.ValueAtQuantile(99), hist.Max()))
	}
	return strings.Join(lines, "\n")
}
