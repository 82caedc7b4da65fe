package versionorder

import (
	"fmt"
	"sort"

	persistent_treap "github.com/gengliqi/persistent_treap/persistent_treap"

	"github.com/pingcap/tichecker/pkg/core"
)

// cellKey addresses one log cell: a key and an offset within its log.
type cellKey struct {
	key    string
	offset int
}

// Less ...
func (a cellKey) Less(b persistent_treap.Sortable) bool {
	other := b.(cellKey)
	if a.key != other.key {
		return a.key < other.key
	}
	return a.offset < other.offset
}

// Equals ...
func (a cellKey) Equals(b persistent_treap.Equitable) bool {
	return a == b.(cellKey)
}

// cellValues is the sorted set of values observed at one cell.
type cellValues []int

// Equals ...
func (a cellValues) Equals(b persistent_treap.Equitable) bool {
	other := b.(cellValues)
	if len(a) != len(other) {
		return false
	}
	for i := range a {
		if a[i] != other[i] {
			return false
		}
	}
	return true
}

func (a cellValues) add(v int) cellValues {
	i := sort.SearchInts(a, v)
	if i < len(a) && a[i] == v {
		return a
	}
	vs := make(cellValues, 0, len(a)+1)
	vs = append(vs, a[:i]...)
	vs = append(vs, v)
	vs = append(vs, a[i:]...)
	return vs
}

// Shard is the mergeable state of a version-order fold over a slice of the
// history. Cells live in a persistent treap so that merged shards share
// structure instead of copying.
type Shard struct {
	cells     persistent_treap.PersistentTreap
	seen      map[cellKey]struct{}
	maxOffset map[string]int
	// unplaced holds values appended by committed ops whose offset was
	// never observed. They cannot be ordered but are still reported.
	unplaced map[string][]int
}

// NewShard ...
func NewShard() *Shard {
	return &Shard{
		cells:     persistent_treap.NewPersistentTreap(),
		seen:      map[cellKey]struct{}{},
		maxOffset: map[string]int{},
		unplaced:  map[string][]int{},
	}
}

func (s *Shard) observe(key string, offset, value int) {
	if offset == core.UnknownOffset {
		s.unplaced[key] = append(s.unplaced[key], value)
		return
	}
	ck := cellKey{key: key, offset: offset}
	var vs cellValues
	if prev, ok := s.cells.GetValue(ck); ok {
		vs = prev.(cellValues)
	}
	s.cells = s.cells.Insert(ck, vs.add(value))
	s.seen[ck] = struct{}{}
	if max, ok := s.maxOffset[key]; !ok || offset > max {
		s.maxOffset[key] = offset
	}
}

// MustCommittedOps returns the set of history positions whose writes are
// provably visible: Ok ops, and Info ops one of whose appended values some
// Ok read observed. The rule is deliberately conservative; an indeterminate
// op whose effects were never read back stays unknown.
func MustCommittedOps(history core.History) map[int]struct{} {
	readValues := map[string]map[int]struct{}{}
	for _, op := range core.FilterOkHistory(history) {
		if op.Value == nil {
			continue
		}
		for _, mop := range *op.Value {
			read, ok := mop.(core.Read)
			if !ok {
				continue
			}
			if readValues[read.Key] == nil {
				readValues[read.Key] = map[int]struct{}{}
			}
			for _, pair := range read.Pairs {
				readValues[read.Key][pair.Value] = struct{}{}
			}
		}
	}

	committed := map[int]struct{}{}
	for i, op := range history {
		switch op.Type {
		case core.OpTypeOk:
			committed[i] = struct{}{}
		case core.OpTypeInfo:
			if op.Value == nil {
				continue
			}
			for _, mop := range *op.Value {
				app, ok := mop.(core.Append)
				if !ok {
					continue
				}
				if _, observed := readValues[app.Key][app.Value]; observed {
					committed[i] = struct{}{}
					break
				}
			}
		}
	}
	return committed
}

// BuildShard folds one slice of the history into a shard. committed is the
// result of MustCommittedOps over the whole history; positions index into
// that same history.
func BuildShard(history core.History, lo, hi int, committed map[int]struct{}) *Shard {
	s := NewShard()
	for i := lo; i < hi; i++ {
		op := history[i]
		if _, ok := committed[i]; !ok {
			continue
		}
		if op.Value == nil {
			continue
		}
		for _, mop := range *op.Value {
			switch m := mop.(type) {
			case core.Append:
				s.observe(m.Key, m.Offset, m.Value)
			case core.Read:
				// Reads place values only when the op definitely happened.
				if op.Type != core.OpTypeOk {
					continue
				}
				for _, pair := range m.Pairs {
					s.observe(m.Key, pair.Offset, pair.Value)
				}
			}
		}
	}
	return s
}

// Merge unions two shards. The receiver's treap is extended cell by cell, so
// unchanged subtrees are shared with both inputs. Merge is associative and
// commutative: cells union and maxima combine orderlessly.
func Merge(a, b *Shard) *Shard {
	merged := &Shard{
		cells:     a.cells,
		seen:      map[cellKey]struct{}{},
		maxOffset: map[string]int{},
		unplaced:  map[string][]int{},
	}
	for ck := range a.seen {
		merged.seen[ck] = struct{}{}
	}
	for key, max := range a.maxOffset {
		merged.maxOffset[key] = max
	}
	for key, vals := range a.unplaced {
		merged.unplaced[key] = append(merged.unplaced[key], vals...)
	}

	for _, ck := range sortedCells(b.seen) {
		bVals, _ := b.cells.GetValue(ck)
		var union cellValues
		if prev, ok := merged.cells.GetValue(ck); ok {
			union = prev.(cellValues)
		}
		for _, v := range bVals.(cellValues) {
			union = union.add(v)
		}
		merged.cells = merged.cells.Insert(ck, union)
		merged.seen[ck] = struct{}{}
	}
	for key, max := range b.maxOffset {
		if prev, ok := merged.maxOffset[key]; !ok || max > prev {
			merged.maxOffset[key] = max
		}
	}
	for key, vals := range b.unplaced {
		merged.unplaced[key] = append(merged.unplaced[key], vals...)
	}
	return merged
}

func sortedCells(seen map[cellKey]struct{}) []cellKey {
	cells := make([]cellKey, 0, len(seen))
	for ck := range seen {
		cells = append(cells, ck)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].key != cells[j].key {
			return cells[i].key < cells[j].key
		}
		return cells[i].offset < cells[j].offset
	})
	return cells
}

// KeyOrder is the inferred version order of one key.
type KeyOrder struct {
	Key string
	// Log maps offsets to the observed value sets. Unobserved offsets are
	// nil.
	Log [][]int
	// ByIndex is the dense version sequence: unobserved and divergent
	// offsets are skipped.
	ByIndex []int
	// ByValue maps a value to its position in ByIndex.
	ByValue map[int]int
	// Unplaced holds committed values whose offset is unknown.
	Unplaced []int
}

// IndexOf returns the position of value in the dense order.
func (ko *KeyOrder) IndexOf(value int) (int, bool) {
	i, ok := ko.ByValue[value]
	return i, ok
}

// PrevValue returns the value directly preceding the given one.
func (ko *KeyOrder) PrevValue(value int) (int, bool) {
	i, ok := ko.ByValue[value]
	if !ok || i == 0 {
		return 0, false
	}
	return ko.ByIndex[i-1], true
}

// NextValue returns the value directly following the given one.
func (ko *KeyOrder) NextValue(value int) (int, bool) {
	i, ok := ko.ByValue[value]
	if !ok || i+1 >= len(ko.ByIndex) {
		return 0, false
	}
	return ko.ByIndex[i+1], true
}

// Orders holds every key's version order plus the anomalies discovered while
// building them.
type Orders struct {
	Keys      map[string]*KeyOrder
	Anomalies core.Anomalies
}

// Key returns the order for one key, nil when nothing was observed.
func (o *Orders) Key(k string) *KeyOrder {
	return o.Keys[k]
}

// Divergence records two values claiming one log position.
type Divergence struct {
	Key    string
	Offset int
	Values []int
}

// IAnomaly ...
func (Divergence) IAnomaly() {}

// String ...
func (d Divergence) String() string {
	return fmt.Sprintf("(Divergence) key %s offset %d observed values %v", d.Key, d.Offset, d.Values)
}

// Duplicate records one value observed at several log positions.
type Duplicate struct {
	Key     string
	Value   int
	Offsets []int
}

// IAnomaly ...
func (Duplicate) IAnomaly() {}

// String ...
func (d Duplicate) String() string {
	return fmt.Sprintf("(Duplicate) key %s value %d appears at offsets %v", d.Key, d.Value, d.Offsets)
}

// Compress turns a (merged) shard into dense per-key version orders.
// Divergent cells are reported and skipped so downstream inference degrades
// instead of aborting.
func Compress(s *Shard) *Orders {
	orders := &Orders{
		Keys:      map[string]*KeyOrder{},
		Anomalies: make(core.Anomalies),
	}

	keys := make([]string, 0, len(s.maxOffset))
	for key := range s.maxOffset {
		keys = append(keys, key)
	}
	for key := range s.unplaced {
		if _, ok := s.maxOffset[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		ko := &KeyOrder{Key: key, ByValue: map[int]int{}}
		max, hasCells := s.maxOffset[key]
		if hasCells {
			ko.Log = make([][]int, max+1)
			valueOffsets := map[int][]int{}
			for off := 0; off <= max; off++ {
				cell, ok := s.cells.GetValue(cellKey{key: key, offset: off})
				if !ok {
					continue
				}
				values := cell.(cellValues)
				ko.Log[off] = values
				for _, v := range values {
					valueOffsets[v] = append(valueOffsets[v], off)
				}
				if len(values) > 1 {
					orders.Anomalies["divergence"] = append(orders.Anomalies["divergence"],
						Divergence{Key: key, Offset: off, Values: values})
					continue
				}
				v := values[0]
				if _, dup := ko.ByValue[v]; dup {
					continue
				}
				ko.ByValue[v] = len(ko.ByIndex)
				ko.ByIndex = append(ko.ByIndex, v)
			}
			for _, v := range sortedIntKeys(valueOffsets) {
				if offs := valueOffsets[v]; len(offs) > 1 {
					orders.Anomalies["duplicate"] = append(orders.Anomalies["duplicate"],
						Duplicate{Key: key, Value: v, Offsets: offs})
				}
			}
		}
		placed := map[int]struct{}{}
		for _, v := range ko.ByIndex {
			placed[v] = struct{}{}
		}
		for _, v := range s.unplaced[key] {
			if _, ok := placed[v]; !ok {
				ko.Unplaced = append(ko.Unplaced, v)
			}
		}
		sort.Ints(ko.Unplaced)
		orders.Keys[key] = ko
	}
	return orders
}

func sortedIntKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Build runs the whole pipeline over one history: committed-op detection,
// a single-shard fold, compression.
func Build(history core.History) *Orders {
	committed := MustCommittedOps(history)
	return Compress(BuildShard(history, 0, len(history), committed))
}

// BuildSharded splits the fold into n shards and merges them; results are
// identical to Build.
func BuildSharded(history core.History, n int) *Orders {
	if n <= 1 || len(history) < 2 {
		return Build(history)
	}
	committed := MustCommittedOps(history)
	size := (len(history) + n - 1) / n
	merged := NewShard()
	for lo := 0; lo < len(history); lo += size {
		hi := lo + size
		if hi > len(history) {
			hi = len(history)
		}
		merged = Merge(merged, BuildShard(history, lo, hi, committed))
	}
	return Compress(merged)
}
