package domain

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spooky-finn/go-marketdata-checker/config"
)

type FieldState uint8

const (
	FieldNotInitialised FieldState = iota
	FieldModified
	FieldNotModified
)

func (s FieldState) String() string {
	switch s {
	case FieldModified:
		return "MODIFIED"
	case FieldNotModified:
		return "NOT_MODIFIED"
	}
	return "NOT_INITIALISED"
}

type FieldRecord struct {
	ID    FieldID
	Value FieldValue
	State FieldState
}

// FieldStateTracker keeps the last value of every field seen on a
// subscription together with whether the current update cycle changed it.
//
// A field becomes MODIFIED when it is applied for the first time, when its
// value differs from the stored one, or unconditionally during a recap
// cycle. Every field MODIFIED in the previous cycle reverts to NOT_MODIFIED
// when the next cycle begins. Not safe for concurrent use; it is owned by
// the listener running on a single dispatch queue.
type FieldStateTracker struct {
	records map[FieldID]*FieldRecord
	touched []FieldID

	cycle   uint64
	started bool
	recap   bool

	logger *slog.Logger
}

func NewFieldStateTracker() *FieldStateTracker {
	return &FieldStateTracker{
		records: make(map[FieldID]*FieldRecord),
		logger:  slog.Default().With("component", "field-state"),
	}
}

// Begin opens update cycle cycle. Re-opening the current cycle is a no-op
// except that it can upgrade it to a recap. Opening an older cycle is a
// misuse: it panics in debug mode and is otherwise ignored.
func (t *FieldStateTracker) Begin(cycle uint64, recap bool) bool {
	if t.started && cycle < t.cycle {
		t.misuse("begin cycle %d after cycle %d", cycle, t.cycle)
		return false
	}
	if t.started && cycle == t.cycle {
		t.recap = t.recap || recap
		return true
	}

	for _, id := range t.touched {
		t.records[id].State = FieldNotModified
	}
	t.touched = t.touched[:0]
	t.cycle = cycle
	t.started = true
	t.recap = recap
	return true
}

// Apply records value v for field id within cycle and returns the resulting
// state. A newer cycle is opened implicitly as a non-recap cycle.
func (t *FieldStateTracker) Apply(id FieldID, v FieldValue, cycle uint64) FieldState {
	if !t.started || cycle != t.cycle {
		if !t.Begin(cycle, false) {
			return t.State(id)
		}
	}

	rec, ok := t.records[id]
	if !ok {
		rec = &FieldRecord{ID: id, Value: v}
		t.records[id] = rec
		t.markModified(rec)
		return rec.State
	}

	if t.recap || !rec.Value.Equal(v) {
		rec.Value = v
		t.markModified(rec)
	}
	return rec.State
}

func (t *FieldStateTracker) markModified(rec *FieldRecord) {
	if rec.State != FieldModified {
		rec.State = FieldModified
		t.touched = append(t.touched, rec.ID)
	}
}

func (t *FieldStateTracker) State(id FieldID) FieldState {
	if rec, ok := t.records[id]; ok {
		return rec.State
	}
	return FieldNotInitialised
}

func (t *FieldStateTracker) Value(id FieldID) (FieldValue, FieldState) {
	if rec, ok := t.records[id]; ok {
		return rec.Value, rec.State
	}
	return FieldValue{}, FieldNotInitialised
}

// Modified returns the fields MODIFIED in the current cycle in the order
// they were first changed.
func (t *FieldStateTracker) Modified() []FieldRecord {
	out := make([]FieldRecord, 0, len(t.touched))
	for _, id := range t.touched {
		out = append(out, *t.records[id])
	}
	return out
}

// Fields returns every initialised field ordered by id.
func (t *FieldStateTracker) Fields() []FieldRecord {
	out := make([]FieldRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *FieldStateTracker) Cycle() uint64 {
	return t.cycle
}

// Reset forgets every field and cycle.
func (t *FieldStateTracker) Reset() {
	t.records = make(map[FieldID]*FieldRecord)
	t.touched = t.touched[:0]
	t.cycle = 0
	t.started = false
	t.recap = false
}

func (t *FieldStateTracker) misuse(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if config.DebugMode {
		panic("field-state: " + msg)
	}
	t.logger.Error("field_state_misuse", "reason", msg)
}
