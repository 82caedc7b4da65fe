// Package history records operation histories as JSON lines and reads them
// back for analysis. One file holds one run, tagged with a generated id so
// mixed-up files are detected instead of silently merged.
package history

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/pingcap/tichecker/pkg/core"
)

type mopRecord struct {
	Type   string             `json:"type"`
	Key    string             `json:"key"`
	Value  int                `json:"value,omitempty"`
	Offset *int               `json:"offset,omitempty"`
	Pairs  []core.OffsetValue `json:"pairs,omitempty"`
}

type opRecord struct {
	RunID   string           `json:"run_id,omitempty"`
	Index   core.IntOptional `json:"index"`
	Process core.IntOptional `json:"process"`
	Type    core.OpType      `json:"type"`
	Time    time.Time        `json:"time"`
	Mops    []mopRecord      `json:"mops"`
}

func toRecord(op core.Op) opRecord {
	rec := opRecord{
		Index:   op.Index,
		Process: op.Process,
		Type:    op.Type,
		Time:    op.Time,
	}
	if op.Value == nil {
		return rec
	}
	for _, mop := range *op.Value {
		switch m := mop.(type) {
		case core.Append:
			mr := mopRecord{Type: "append", Key: m.Key, Value: m.Value}
			if m.Offset != core.UnknownOffset {
				offset := m.Offset
				mr.Offset = &offset
			}
			rec.Mops = append(rec.Mops, mr)
		case core.Read:
			rec.Mops = append(rec.Mops, mopRecord{Type: "read", Key: m.Key, Pairs: m.Pairs})
		case core.Write:
			rec.Mops = append(rec.Mops, mopRecord{Type: "write", Key: m.Key, Value: m.Value})
		}
	}
	return rec
}

func fromRecord(rec opRecord) (core.Op, error) {
	op := core.Op{
		Index:   rec.Index,
		Process: rec.Process,
		Type:    rec.Type,
		Time:    rec.Time,
	}
	mops := make([]core.Mop, 0, len(rec.Mops))
	for _, mr := range rec.Mops {
		switch mr.Type {
		case "append":
			offset := core.UnknownOffset
			if mr.Offset != nil {
				offset = *mr.Offset
			}
			mops = append(mops, core.Append{Key: mr.Key, Value: mr.Value, Offset: offset})
		case "read":
			mops = append(mops, core.Read{Key: mr.Key, Pairs: mr.Pairs})
		case "write":
			mops = append(mops, core.Write{Key: mr.Key, Value: mr.Value})
		default:
			return core.Op{}, errors.Errorf("unknown mop type %q", mr.Type)
		}
	}
	op.Value = &mops
	return op, nil
}

// Recorder appends operations to a history file as they happen. Safe for
// concurrent use by multiple client processes.
type Recorder struct {
	sync.Mutex
	f     *os.File
	w     *bufio.Writer
	runID string
	first bool
}

// NewRecorder creates a recorder writing to name.
func NewRecorder(name string) (*Recorder, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Recorder{
		f:     f,
		w:     bufio.NewWriter(f),
		runID: uuid.New().String(),
		first: true,
	}, nil
}

// RunID identifies this recording.
func (r *Recorder) RunID() string {
	return r.runID
}

// RecordInvoke writes an invocation record.
func (r *Recorder) RecordInvoke(process int, mops []core.Mop) error {
	return r.record(core.Op{
		Process: core.NewOptInt(process),
		Type:    core.OpTypeInvoke,
		Time:    time.Now(),
		Value:   &mops,
	})
}

// RecordCompletion writes the completion of the process's open invocation.
func (r *Recorder) RecordCompletion(process int, typ core.OpType, mops []core.Mop) error {
	return r.record(core.Op{
		Process: core.NewOptInt(process),
		Type:    typ,
		Time:    time.Now(),
		Value:   &mops,
	})
}

func (r *Recorder) record(op core.Op) error {
	rec := toRecord(op)
	r.Lock()
	defer r.Unlock()
	if r.first {
		rec.RunID = r.runID
		r.first = false
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.w.Flush())
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.Lock()
	defer r.Unlock()
	if err := r.w.Flush(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.f.Close())
}

// ReadHistory loads a history file written by a Recorder.
func ReadHistory(name string) (core.History, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()

	var history core.History
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec opRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, errors.Annotatef(err, "history %s line %d", name, line)
		}
		op, err := fromRecord(rec)
		if err != nil {
			return nil, errors.Annotatef(err, "history %s line %d", name, line)
		}
		history = append(history, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return history, nil
}

// CompleteOperations closes the dangling invocations of a crashed run: every
// invoke without a paired completion gets an info completion appended, since
// its effects are indeterminate.
func CompleteOperations(history core.History) core.History {
	pairs := history.PairIndex()
	completed := append(core.History{}, history...)
	for i, op := range history {
		if op.Type != core.OpTypeInvoke || pairs[i] >= 0 {
			continue
		}
		info := op.Copy()
		info.Type = core.OpTypeInfo
		info.Index = core.IntOptional{}
		info.Time = history[len(history)-1].Time
		completed = append(completed, info)
	}
	return completed
}
