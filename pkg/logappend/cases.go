package logappend

import (
	"fmt"
	"time"

	"github.com/pingcap/tichecker/pkg/core"
	"github.com/pingcap/tichecker/pkg/txn"
	"github.com/pingcap/tichecker/pkg/versionorder"
)

// G1aCase is an aborted read: a read observed a value whose writer
// definitely failed.
type G1aCase struct {
	Op       core.Op
	MopIndex int
	Writer   core.Op
	Key      string
	Value    int
}

// IAnomaly ...
func (G1aCase) IAnomaly() {}

// String ...
func (c G1aCase) String() string {
	return fmt.Sprintf("(G1a) op %s read key %s value %d written by failed op %s",
		c.Op.String(), c.Key, c.Value, c.Writer.String())
}

// G1bCase is an intermediate read: a read observed a value its writer
// overwrote within the same transaction.
type G1bCase struct {
	Op       core.Op
	MopIndex int
	Writer   core.Op
	Key      string
	Value    int
}

// IAnomaly ...
func (G1bCase) IAnomaly() {}

// String ...
func (c G1bCase) String() string {
	return fmt.Sprintf("(G1b) op %s read key %s intermediate value %d of op %s",
		c.Op.String(), c.Key, c.Value, c.Writer.String())
}

func g1aCases(history core.History) []core.Anomaly {
	failed := txn.FailedWrites(history)
	var cases []core.Anomaly
	for _, op := range core.FilterOkHistory(history) {
		if op.Value == nil {
			continue
		}
		for i, mop := range *op.Value {
			read, ok := mop.(core.Read)
			if !ok {
				continue
			}
			for _, pair := range read.Pairs {
				writer, bad := failed[read.Key][pair.Value]
				if !bad {
					continue
				}
				cases = append(cases, G1aCase{
					Op:       op,
					MopIndex: i,
					Writer:   *writer,
					Key:      read.Key,
					Value:    pair.Value,
				})
			}
		}
	}
	return cases
}

func g1bCases(history core.History) []core.Anomaly {
	inter := txn.IntermediateWrites(history)
	var cases []core.Anomaly
	for _, op := range core.FilterOkHistory(history) {
		if op.Value == nil {
			continue
		}
		for i, mop := range *op.Value {
			read, ok := mop.(core.Read)
			if !ok {
				continue
			}
			for _, pair := range read.Pairs {
				writer, bad := inter[read.Key][pair.Value]
				if !bad {
					continue
				}
				// Reading your own intermediate state is legal.
				if writer.Index == op.Index {
					continue
				}
				cases = append(cases, G1bCase{
					Op:       op,
					MopIndex: i,
					Writer:   *writer,
					Key:      read.Key,
					Value:    pair.Value,
				})
			}
		}
	}
	return cases
}

// internalMagicNumber marks a per-key expectation that starts mid-log: we
// only know our own appends, not what preceded them.
const internalMagicNumber = -114514

// InternalCase is a transaction whose later read contradicts its own earlier
// reads or appends.
type InternalCase struct {
	Op       core.Op
	MopIndex int
	Key      string
	Expected []int
	Actual   []int
}

// IAnomaly ...
func (InternalCase) IAnomaly() {}

// String ...
func (c InternalCase) String() string {
	return fmt.Sprintf("(Internal) op %s read key %s %v, expected %v",
		c.Op.String(), c.Key, c.Actual, c.Expected)
}

func opInternalCases(op core.Op) *InternalCase {
	expect := map[string][]int{}
	for i, mop := range *op.Value {
		switch m := mop.(type) {
		case core.Read:
			records := make([]int, 0, len(m.Pairs))
			for _, pair := range m.Pairs {
				records = append(records, pair.Value)
			}
			prev, seen := expect[m.Key]
			if !seen {
				expect[m.Key] = records
				continue
			}
			if len(prev) > 0 && prev[0] == internalMagicNumber {
				// We appended without reading first: the log must end
				// with our appends.
				suffix := prev[1:]
				if len(records) < len(suffix) {
					return &InternalCase{Op: op, MopIndex: i, Key: m.Key, Expected: suffix, Actual: records}
				}
				tail := records[len(records)-len(suffix):]
				for j := range suffix {
					if tail[j] != suffix[j] {
						return &InternalCase{Op: op, MopIndex: i, Key: m.Key, Expected: suffix, Actual: records}
					}
				}
			} else {
				// A prior read pinned the full prefix.
				if len(records) < len(prev) {
					return &InternalCase{Op: op, MopIndex: i, Key: m.Key, Expected: prev, Actual: records}
				}
				for j := range prev {
					if records[j] != prev[j] {
						return &InternalCase{Op: op, MopIndex: i, Key: m.Key, Expected: prev, Actual: records}
					}
				}
			}
			expect[m.Key] = records
		case core.Append:
			if _, seen := expect[m.Key]; !seen {
				expect[m.Key] = []int{internalMagicNumber}
			}
			expect[m.Key] = append(expect[m.Key], m.Value)
		}
	}
	return nil
}

func internalCases(history core.History) []core.Anomaly {
	var cases []core.Anomaly
	for _, op := range core.FilterOkHistory(history) {
		if op.Value == nil {
			continue
		}
		if c := opInternalCases(op); c != nil {
			cases = append(cases, *c)
		}
	}
	return cases
}

// LostWriteCase is a committed write never observed although a later version
// of the same key was.
type LostWriteCase struct {
	Key        string
	Value      int
	Writer     core.Op
	LaterValue int
	Witness    core.Op
}

// IAnomaly ...
func (LostWriteCase) IAnomaly() {}

// String ...
func (c LostWriteCase) String() string {
	return fmt.Sprintf("(LostWrite) key %s value %d written by op %s was never read, but later value %d was read by op %s",
		c.Key, c.Value, c.Writer.String(), c.LaterValue, c.Witness.String())
}

func lostWriteCases(orders *versionorder.Orders, wi writeIdx, ri readIdx) []core.Anomaly {
	var cases []core.Anomaly
	for _, key := range sortedOrderKeys(orders) {
		order := orders.Keys[key]
		maxReadPos := -1
		for _, v := range order.ByIndex {
			if len(ri[key][v]) == 0 {
				continue
			}
			if i, ok := order.IndexOf(v); ok && i > maxReadPos {
				maxReadPos = i
			}
		}
		if maxReadPos < 0 {
			continue
		}
		laterValue := order.ByIndex[maxReadPos]
		witness := earliestOp(ri[key][laterValue])
		for pos := 0; pos < maxReadPos; pos++ {
			v := order.ByIndex[pos]
			if len(ri[key][v]) > 0 {
				continue
			}
			writer, ok := wi[key][v]
			if !ok {
				continue
			}
			cases = append(cases, LostWriteCase{
				Key:        key,
				Value:      v,
				Writer:     writer,
				LaterValue: laterValue,
				Witness:    witness,
			})
		}
	}
	return cases
}

func earliestOp(ops []core.Op) core.Op {
	best := ops[0]
	for _, op := range ops[1:] {
		if op.Index.MustGet() < best.Index.MustGet() {
			best = op
		}
	}
	return best
}

// DuplicateReadCase is a single poll observing one value more than once.
type DuplicateReadCase struct {
	Op       core.Op
	MopIndex int
	Key      string
	Value    int
	Count    int
}

// IAnomaly ...
func (DuplicateReadCase) IAnomaly() {}

// String ...
func (c DuplicateReadCase) String() string {
	return fmt.Sprintf("(Duplicate) op %s read key %s value %d %d times in one poll",
		c.Op.String(), c.Key, c.Value, c.Count)
}

func duplicateReadCases(history core.History) []core.Anomaly {
	var cases []core.Anomaly
	for _, op := range core.FilterOkHistory(history) {
		if op.Value == nil {
			continue
		}
		for i, mop := range *op.Value {
			read, ok := mop.(core.Read)
			if !ok {
				continue
			}
			counts := map[int]int{}
			for _, pair := range read.Pairs {
				counts[pair.Value]++
			}
			for _, pair := range read.Pairs {
				if counts[pair.Value] > 1 {
					cases = append(cases, DuplicateReadCase{
						Op:       op,
						MopIndex: i,
						Key:      read.Key,
						Value:    pair.Value,
						Count:    counts[pair.Value],
					})
					counts[pair.Value] = 0
				}
			}
		}
	}
	return cases
}

// NonMonotonicReadCase is a poll whose offsets go backwards, either within
// one read or between successive reads of the same key in one transaction.
type NonMonotonicReadCase struct {
	Op         core.Op
	MopIndex   int
	Key        string
	PrevOffset int
	Offset     int
}

// IAnomaly ...
func (NonMonotonicReadCase) IAnomaly() {}

// String ...
func (c NonMonotonicReadCase) String() string {
	return fmt.Sprintf("(NonMonotonicRead) op %s read key %s offset %d after offset %d",
		c.Op.String(), c.Key, c.Offset, c.PrevOffset)
}

func nonMonotonicReadCases(history core.History) []core.Anomaly {
	var cases []core.Anomaly
	for _, op := range core.FilterOkHistory(history) {
		if op.Value == nil {
			continue
		}
		lastOffset := map[string]int{}
		for i, mop := range *op.Value {
			read, ok := mop.(core.Read)
			if !ok {
				continue
			}
			prev := -1
			for _, pair := range read.Pairs {
				if pair.Offset == core.UnknownOffset {
					continue
				}
				if pair.Offset <= prev {
					cases = append(cases, NonMonotonicReadCase{
						Op:         op,
						MopIndex:   i,
						Key:        read.Key,
						PrevOffset: prev,
						Offset:     pair.Offset,
					})
				}
				prev = pair.Offset
			}
			if last, seen := lastOffset[read.Key]; seen && prev >= 0 && prev < last {
				cases = append(cases, NonMonotonicReadCase{
					Op:         op,
					MopIndex:   i,
					Key:        read.Key,
					PrevOffset: last,
					Offset:     prev,
				})
			}
			if prev >= 0 {
				lastOffset[read.Key] = prev
			}
		}
	}
	return cases
}

// UnseenPoint samples how many committed values were written but not yet
// read, per key, at one moment of the history.
type UnseenPoint struct {
	Index  int
	Time   time.Time
	Unseen map[string]int
	Total  int
}

// UnseenSeries walks the history in order and samples the unseen counts
// after every completed op. External plotters consume this series; it never
// affects the verdict.
func UnseenSeries(history core.History) []UnseenPoint {
	pending := map[string]map[int]struct{}{}
	var series []UnseenPoint
	for _, op := range history {
		if op.Type != core.OpTypeOk || op.Value == nil {
			continue
		}
		for _, mop := range *op.Value {
			switch m := mop.(type) {
			case core.Append:
				if pending[m.Key] == nil {
					pending[m.Key] = map[int]struct{}{}
				}
				pending[m.Key][m.Value] = struct{}{}
			case core.Read:
				for _, pair := range m.Pairs {
					delete(pending[m.Key], pair.Value)
				}
			}
		}
		point := UnseenPoint{Unseen: map[string]int{}}
		if op.Index.Present() {
			point.Index = op.Index.MustGet()
		}
		point.Time = op.Time
		for key, vals := range pending {
			if len(vals) > 0 {
				point.Unseen[key] = len(vals)
				point.Total += len(vals)
			}
		}
		series = append(series, point)
	}
	return series
}
