package domain

type SeqClass uint8

const (
	// First sequenced message, or any recap. Establishes the cursor.
	SeqInitial SeqClass = iota
	SeqContinuation
	SeqGap
	SeqDuplicate
	// Non-recap message before any recap while a recap is required.
	SeqUnsynced
)

func (c SeqClass) String() string {
	switch c {
	case SeqInitial:
		return "initial"
	case SeqContinuation:
		return "continuation"
	case SeqGap:
		return "gap"
	case SeqDuplicate:
		return "duplicate"
	}
	return "unsynced"
}

// Err maps the anomalous classes to their sentinel errors.
func (c SeqClass) Err() error {
	switch c {
	case SeqGap:
		return ErrSequenceGap
	case SeqDuplicate:
		return ErrSequenceDuplicate
	}
	return nil
}

// Gap is the inclusive range of sequence numbers that never arrived.
type Gap struct {
	From uint64
	To   uint64
}

func (g Gap) Len() uint64 {
	if g.To < g.From {
		return 0
	}
	return g.To - g.From + 1
}

type SequenceCursor struct {
	SeqNum uint64
	Type   MsgType
}

// SequenceMonitor classifies messages per entity against the last accepted
// sequence number. Recaps always move the cursor, including backwards.
type SequenceMonitor struct {
	RequireRecap bool

	cursors map[string]*SequenceCursor
}

func NewSequenceMonitor(requireRecap bool) *SequenceMonitor {
	return &SequenceMonitor{
		RequireRecap: requireRecap,
		cursors:      make(map[string]*SequenceCursor),
	}
}

// Classify classifies seq for entity and advances the cursor unless the
// result is SeqDuplicate or SeqUnsynced. The returned gap is set only for
// SeqGap.
func (m *SequenceMonitor) Classify(entity string, seq uint64, isRecap bool) (SeqClass, Gap) {
	cur, ok := m.cursors[entity]

	if isRecap {
		if !ok {
			cur = &SequenceCursor{}
			m.cursors[entity] = cur
		}
		cur.SeqNum = seq
		return SeqInitial, Gap{}
	}

	if !ok {
		if m.RequireRecap {
			return SeqUnsynced, Gap{}
		}
		m.cursors[entity] = &SequenceCursor{SeqNum: seq}
		return SeqInitial, Gap{}
	}

	switch {
	case seq <= cur.SeqNum:
		return SeqDuplicate, Gap{}
	case seq == cur.SeqNum+1:
		cur.SeqNum = seq
		return SeqContinuation, Gap{}
	default:
		gap := Gap{From: cur.SeqNum + 1, To: seq - 1}
		cur.SeqNum = seq
		return SeqGap, gap
	}
}

// Observe classifies msg against the cursor of its symbol and records its
// type on the cursor when accepted.
func (m *SequenceMonitor) Observe(msg Message) (SeqClass, Gap) {
	class, gap := m.Classify(msg.Symbol(), msg.SeqNum(), msg.Type().IsRecap())
	if class != SeqDuplicate && class != SeqUnsynced {
		m.cursors[msg.Symbol()].Type = msg.Type()
	}
	return class, gap
}

func (m *SequenceMonitor) Cursor(entity string) (SequenceCursor, bool) {
	cur, ok := m.cursors[entity]
	if !ok {
		return SequenceCursor{}, false
	}
	return *cur, true
}

// Reset drops the cursor so the next message for entity starts fresh.
func (m *SequenceMonitor) Reset(entity string) {
	delete(m.cursors, entity)
}
