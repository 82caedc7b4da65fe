package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/mohae/deepcopy"
)

// MopValueType ...
type MopValueType interface{}

// OpType ...
type OpType string

// MopType ...
type MopType string

// OpType enums
const (
	OpTypeInvoke  OpType = "invoke"
	OpTypeOk      OpType = "ok"
	OpTypeFail    OpType = "fail"
	OpTypeInfo    OpType = "info"
	OpTypeNemesis OpType = "nemesis"
)

// MopType enums
const (
	MopTypeAll    MopType = "all"
	MopTypeAppend MopType = "append"
	MopTypeRead   MopType = "read"
	MopTypeWrite  MopType = "write"
)

// UnknownOffset marks a cell whose log position was never observed.
const UnknownOffset = -1

// OffsetValue is one observed log cell: a value together with the offset it
// was read or acknowledged at.
type OffsetValue struct {
	Offset int `json:"offset"`
	Value  int `json:"value"`
}

func (ov OffsetValue) String() string {
	if ov.Offset == UnknownOffset {
		return fmt.Sprintf("[_ %d]", ov.Value)
	}
	return fmt.Sprintf("[%d %d]", ov.Offset, ov.Value)
}

// Mop is a micro-operation inside a transaction.
type Mop interface {
	IsAppend() bool
	IsRead() bool
	IsWrite() bool
	GetMopType() MopType
	GetKey() string
	GetValue() MopValueType
	IsEqual(b Mop) bool
	String() string
}

// Append sends a value to the log of one key. Offset is the acknowledged log
// position, UnknownOffset until (unless) the send is confirmed.
type Append struct {
	Key    string `json:"key"`
	Value  int    `json:"value"`
	Offset int    `json:"offset"`
}

// Read polls one key and carries the observed offset/value pairs. Pairs is
// nil on invocations.
type Read struct {
	Key   string        `json:"key"`
	Pairs []OffsetValue `json:"pairs"`
}

// Write assigns a scalar value to a register key. Used by monotonic-key
// histories, where values per key never decrease.
type Write struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

// IsAppend ...
func (Append) IsAppend() bool { return true }

// IsRead ...
func (Append) IsRead() bool { return false }

// IsWrite ...
func (Append) IsWrite() bool { return false }

// GetMopType ...
func (Append) GetMopType() MopType { return MopTypeAppend }

// GetKey ...
func (a Append) GetKey() string { return a.Key }

// GetValue ...
func (a Append) GetValue() MopValueType { return a.Value }

// IsEqual ...
func (a Append) IsEqual(b Mop) bool {
	other, ok := b.(Append)
	return ok && a == other
}

func (a Append) String() string {
	if a.Offset == UnknownOffset {
		return fmt.Sprintf("[:append %s %d]", a.Key, a.Value)
	}
	return fmt.Sprintf("[:append %s [%d %d]]", a.Key, a.Offset, a.Value)
}

// IsAppend ...
func (Read) IsAppend() bool { return false }

// IsRead ...
func (Read) IsRead() bool { return true }

// IsWrite ...
func (Read) IsWrite() bool { return false }

// GetMopType ...
func (Read) GetMopType() MopType { return MopTypeRead }

// GetKey ...
func (r Read) GetKey() string { return r.Key }

// GetValue returns the observed values, in read order.
func (r Read) GetValue() MopValueType {
	if r.Pairs == nil {
		return nil
	}
	values := make([]int, 0, len(r.Pairs))
	for _, pair := range r.Pairs {
		values = append(values, pair.Value)
	}
	return values
}

// IsEqual ...
func (r Read) IsEqual(b Mop) bool {
	other, ok := b.(Read)
	if !ok || r.Key != other.Key || len(r.Pairs) != len(other.Pairs) {
		return false
	}
	for i := range r.Pairs {
		if r.Pairs[i] != other.Pairs[i] {
			return false
		}
	}
	return true
}

func (r Read) String() string {
	if r.Pairs == nil {
		return fmt.Sprintf("[:r %s nil]", r.Key)
	}
	var parts []string
	for _, pair := range r.Pairs {
		parts = append(parts, pair.String())
	}
	return fmt.Sprintf("[:r %s [%s]]", r.Key, strings.Join(parts, " "))
}

// IsAppend ...
func (Write) IsAppend() bool { return false }

// IsRead ...
func (Write) IsRead() bool { return false }

// IsWrite ...
func (Write) IsWrite() bool { return true }

// GetMopType ...
func (Write) GetMopType() MopType { return MopTypeWrite }

// GetKey ...
func (w Write) GetKey() string { return w.Key }

// GetValue ...
func (w Write) GetValue() MopValueType { return w.Value }

// IsEqual ...
func (w Write) IsEqual(b Mop) bool {
	other, ok := b.(Write)
	return ok && w == other
}

func (w Write) String() string {
	return fmt.Sprintf("[:w %s %d]", w.Key, w.Value)
}

// IntOptional distinguishes "zero" from "absent" for op indexes and
// processes. Nemesis ops, for one, carry no process at all.
type IntOptional struct {
	value interface{}
}

// NewOptInt wraps v.
func NewOptInt(v int) IntOptional {
	return IntOptional{value: v}
}

// Set sets the int value.
func (i *IntOptional) Set(v int) {
	i.value = v
}

// MustGet returns the value and panics when it is absent.
func (i IntOptional) MustGet() int {
	return i.value.(int)
}

// Present returns whether the value is present.
func (i IntOptional) Present() bool {
	return i.value != nil
}

// MarshalJSON renders an absent value as null.
func (i IntOptional) MarshalJSON() ([]byte, error) {
	if i.Present() {
		return json.Marshal(i.value)
	}
	return json.Marshal(nil)
}

// UnmarshalJSON ...
func (i *IntOptional) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		i.value = nil
		return nil
	}
	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	i.value = value
	return nil
}

// Op is one recorded operation: the invocation or a completion of a
// transaction. Value is a pointer so that an invocation and its completion
// can be compared and hashed cheaply; ops derived from the same history
// share the underlying mop slice.
type Op struct {
	Index   IntOptional `json:"index"`
	Process IntOptional `json:"process"`
	Time    time.Time   `json:"time"`
	Type    OpType      `json:"type"`
	Value   *[]Mop      `json:"value"`
}

// ValueLength returns the number of mops the op carries.
func (op Op) ValueLength() int {
	if op.Value == nil {
		return 0
	}
	return len(*op.Value)
}

// Copy clones the op with its own mop slice, so mutating the clone's mops
// never touches the original. The Index and Process fields hold unexported
// state, so only the mop slice goes through deepcopy.
func (op Op) Copy() Op {
	cp := op
	if op.Value != nil {
		mops := deepcopy.Copy(*op.Value).([]Mop)
		cp.Value = &mops
	}
	return cp
}

func (op Op) String() string {
	var parts []string
	if op.Index.Present() {
		parts = append(parts, fmt.Sprintf(":index %d", op.Index.MustGet()))
	}
	if op.Process.Present() {
		parts = append(parts, fmt.Sprintf(":process %d", op.Process.MustGet()))
	}
	parts = append(parts, fmt.Sprintf(":type :%s", op.Type))
	if op.Value != nil {
		var mops []string
		for _, mop := range *op.Value {
			mops = append(mops, mop.String())
		}
		parts = append(parts, fmt.Sprintf(":value [%s]", strings.Join(mops, " ")))
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, " "))
}

// History contains operations in the order they were recorded.
type History []Op

// FilterType filters by op type.
func (h History) FilterType(t OpType) History {
	var filtered History
	for _, op := range h {
		if op.Type == t {
			filtered = append(filtered, op)
		}
	}
	return filtered
}

// FilterProcess filters by process.
func (h History) FilterProcess(p int) History {
	var filtered History
	for _, op := range h {
		if op.Process.Present() && op.Process.MustGet() == p {
			filtered = append(filtered, op)
		}
	}
	return filtered
}

// GetKeys returns the keys touched by mops of the given type. MopTypeAll
// matches every mop.
func (h History) GetKeys(t MopType) []string {
	var keys []string
	for _, op := range h {
		if op.Value == nil {
			continue
		}
		for _, mop := range *op.Value {
			if t == MopTypeAll || mop.GetMopType() == t {
				keys = append(keys, mop.GetKey())
			}
		}
	}
	return keys
}

// AttachIndexIfNoExists numbers ops by their history position when the
// recorder did not.
func (h History) AttachIndexIfNoExists() {
	for _, op := range h {
		if op.Index.Present() {
			return
		}
	}
	for i := range h {
		h[i].Index = NewOptInt(i)
	}
}

// PairIndex maps each history position to the position of its paired
// invocation/completion by the same process. Positions without a pair (an
// invocation whose process never returned) map to -1.
func (h History) PairIndex() []int {
	pairs := make([]int, len(h))
	for i := range pairs {
		pairs[i] = -1
	}
	open := map[int]int{}
	for i, op := range h {
		if !op.Process.Present() {
			continue
		}
		p := op.Process.MustGet()
		switch op.Type {
		case OpTypeInvoke:
			open[p] = i
		case OpTypeOk, OpTypeFail, OpTypeInfo:
			if j, ok := open[p]; ok {
				pairs[j] = i
				pairs[i] = j
				delete(open, p)
			}
		}
	}
	return pairs
}

var (
	operationPattern = regexp.MustCompile(`\{(.*)\}`)
	opIndexPattern   = regexp.MustCompile(`:index\s+(\d+)`)
	opProcessPattern = regexp.MustCompile(`:process\s+(\d+)`)
	opTypePattern    = regexp.MustCompile(`:type\s+:(\w+)`)
	opValuePattern   = regexp.MustCompile(`:value\s+\[(.*)\]\s*$`)
)

// ParseHistory parses a history from its text rendering, one op per line.
func ParseHistory(content string) (History, error) {
	var history History
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		op, err := ParseOp(strings.TrimSpace(line))
		if err != nil {
			return nil, errors.Annotatef(err, "parse op %q", line)
		}
		history = append(history, op)
	}
	return history, nil
}

// ParseOp parses one operation line, the inverse of Op.String.
func ParseOp(opString string) (Op, error) {
	var op Op
	m := operationPattern.FindStringSubmatch(opString)
	if len(m) != 2 {
		return op, errors.New("operation should be surrounded by {}")
	}
	body := m[1]

	if im := opIndexPattern.FindStringSubmatch(body); len(im) == 2 {
		idx, err := strconv.Atoi(im[1])
		if err != nil {
			return op, errors.Trace(err)
		}
		op.Index = NewOptInt(idx)
	}
	if pm := opProcessPattern.FindStringSubmatch(body); len(pm) == 2 {
		p, err := strconv.Atoi(pm[1])
		if err != nil {
			return op, errors.Trace(err)
		}
		op.Process = NewOptInt(p)
	}

	tm := opTypePattern.FindStringSubmatch(body)
	if len(tm) != 2 {
		return op, errors.New("operation should have a :type field")
	}
	switch OpType(tm[1]) {
	case OpTypeInvoke, OpTypeOk, OpTypeFail, OpTypeInfo, OpTypeNemesis:
		op.Type = OpType(tm[1])
	default:
		return op, errors.Errorf("invalid op type %q", tm[1])
	}

	vm := opValuePattern.FindStringSubmatch(body)
	if len(vm) == 2 {
		mops, err := parseMops(vm[1])
		if err != nil {
			return op, errors.Trace(err)
		}
		op.Value = &mops
	}
	return op, nil
}

// parseMops parses a sequence of micro-ops like
// [:append x 1] [:append y [3 2]] [:r x [[0 1] [1 2]]] [:w k 5].
func parseMops(content string) ([]Mop, error) {
	mops := []Mop{}
	rest := strings.TrimSpace(content)
	for rest != "" {
		tokens, remainder, err := nextBracketGroup(rest)
		if err != nil {
			return nil, err
		}
		mop, err := parseMop(tokens)
		if err != nil {
			return nil, err
		}
		mops = append(mops, mop)
		rest = strings.TrimSpace(remainder)
	}
	return mops, nil
}

// nextBracketGroup splits off the first balanced [...] group.
func nextBracketGroup(s string) (group, rest string, err error) {
	if s[0] != '[' {
		return "", "", errors.Errorf("mop should start with [, got %q", s)
	}
	depth := 0
	for i, c := range s {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", errors.Errorf("unbalanced brackets in %q", s)
}

func parseMop(body string) (Mop, error) {
	fields := strings.SplitN(strings.TrimSpace(body), " ", 3)
	if len(fields) != 3 {
		return nil, errors.Errorf("mop should have three fields, got %q", body)
	}
	fn, key, val := fields[0], fields[1], strings.TrimSpace(fields[2])
	switch fn {
	case ":append":
		if strings.HasPrefix(val, "[") {
			pair, err := parseIntPair(val)
			if err != nil {
				return nil, err
			}
			return Append{Key: key, Offset: pair.Offset, Value: pair.Value}, nil
		}
		v, err := strconv.Atoi(val)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return Append{Key: key, Value: v, Offset: UnknownOffset}, nil
	case ":r":
		if val == "nil" {
			return Read{Key: key}, nil
		}
		inner, remainder, err := nextBracketGroup(val)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(remainder) != "" {
			return nil, errors.Errorf("trailing content after read pairs: %q", remainder)
		}
		pairs := []OffsetValue{}
		rest := strings.TrimSpace(inner)
		for rest != "" {
			group, rem, err := nextBracketGroup(rest)
			if err != nil {
				return nil, err
			}
			pair, err := parseIntPair("[" + group + "]")
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair)
			rest = strings.TrimSpace(rem)
		}
		return Read{Key: key, Pairs: pairs}, nil
	case ":w":
		v, err := strconv.Atoi(val)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return Write{Key: key, Value: v}, nil
	default:
		return nil, errors.Errorf("unknown mop function %q", fn)
	}
}

func parseIntPair(s string) (OffsetValue, error) {
	var pair OffsetValue
	inner, _, err := nextBracketGroup(strings.TrimSpace(s))
	if err != nil {
		return pair, err
	}
	fields := strings.Fields(inner)
	if len(fields) != 2 {
		return pair, errors.Errorf("pair should have two fields, got %q", inner)
	}
	if fields[0] == "_" {
		pair.Offset = UnknownOffset
	} else {
		pair.Offset, err = strconv.Atoi(fields[0])
		if err != nil {
			return pair, errors.Trace(err)
		}
	}
	pair.Value, err = strconv.Atoi(fields[1])
	if err != nil {
		return pair, errors.Trace(err)
	}
	return pair, nil
}
