package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type MsgType uint8

const (
	MsgUnknown MsgType = iota
	MsgInitial
	MsgRecap
	MsgSnapshot
	MsgUpdate
	MsgQuote
	MsgTrade
	MsgCancel
	MsgCorrection
	MsgClosing
	MsgSecStatus
	MsgBookInitial
	MsgBookRecap
	MsgBookSnapshot
	MsgBookUpdate
	MsgBookClear
)

var msgTypeNames = map[MsgType]string{
	MsgUnknown:      "UNKNOWN",
	MsgInitial:      "INITIAL",
	MsgRecap:        "RECAP",
	MsgSnapshot:     "SNAPSHOT",
	MsgUpdate:       "UPDATE",
	MsgQuote:        "QUOTE",
	MsgTrade:        "TRADE",
	MsgCancel:       "CANCEL",
	MsgCorrection:   "CORRECTION",
	MsgClosing:      "CLOSING",
	MsgSecStatus:    "SEC_STATUS",
	MsgBookInitial:  "BOOK_INITIAL",
	MsgBookRecap:    "BOOK_RECAP",
	MsgBookSnapshot: "BOOK_SNAPSHOT",
	MsgBookUpdate:   "BOOK_UPDATE",
	MsgBookClear:    "BOOK_CLEAR",
}

func (t MsgType) String() string {
	if s, ok := msgTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MsgType(%d)", t)
}

func ParseMsgType(s string) (MsgType, error) {
	s = strings.ToUpper(s)
	for t, name := range msgTypeNames {
		if name == s && t != MsgUnknown {
			return t, nil
		}
	}
	return MsgUnknown, fmt.Errorf("unknown message type %q", s)
}

// IsRecap reports whether the message carries full state that replaces
// whatever the receiver had before.
func (t MsgType) IsRecap() bool {
	switch t {
	case MsgInitial, MsgRecap, MsgSnapshot, MsgBookInitial, MsgBookRecap, MsgBookSnapshot:
		return true
	}
	return false
}

func (t MsgType) IsBook() bool {
	return t >= MsgBookInitial && t <= MsgBookClear
}

type MsgStatus uint8

const (
	StatusOK MsgStatus = iota
	StatusPossiblyStale
	StatusStale
	StatusLineDown
	StatusPossiblyDuplicate
	StatusNotEntitled
)

var msgStatusNames = map[MsgStatus]string{
	StatusOK:                "OK",
	StatusPossiblyStale:     "POSSIBLY_STALE",
	StatusStale:             "STALE",
	StatusLineDown:          "LINE_DOWN",
	StatusPossiblyDuplicate: "POSSIBLY_DUPLICATE",
	StatusNotEntitled:       "NOT_ENTITLED",
}

func (s MsgStatus) String() string {
	if name, ok := msgStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("MsgStatus(%d)", s)
}

// ParseMsgStatus treats an empty string as OK.
func ParseMsgStatus(s string) (MsgStatus, error) {
	if s == "" {
		return StatusOK, nil
	}
	s = strings.ToUpper(s)
	for st, name := range msgStatusNames {
		if name == s {
			return st, nil
		}
	}
	return StatusOK, fmt.Errorf("unknown message status %q", s)
}

type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	if s == SideAsk {
		return "ask"
	}
	return "bid"
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "bid", "b", "buy":
		return SideBid, nil
	case "ask", "a", "sell":
		return SideAsk, nil
	}
	return SideBid, fmt.Errorf("%w: %q", ErrUnknownSide, s)
}

type Action uint8

const (
	ActionAdd Action = iota
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return "add"
}

func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "add", "a", "":
		return ActionAdd, nil
	case "update", "u":
		return ActionUpdate, nil
	case "delete", "d":
		return ActionDelete, nil
	}
	return ActionAdd, fmt.Errorf("unknown book action %q", s)
}

// EntryAction adds, updates or deletes a single order within a price level.
type EntryAction struct {
	Action Action
	ID     string
	Size   decimal.Decimal
	Time   time.Time
}

// LevelAction is one price-level change carried by a book message. Recap
// messages carry one ADD per level.
type LevelAction struct {
	Action     Action
	Side       Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	NumEntries int
	Time       time.Time
	Entries    []EntryAction
}

// Message is a read-only view of one market-data message.
type Message interface {
	Type() MsgType
	Status() MsgStatus
	SeqNum() uint64
	Symbol() string
	Time() time.Time
	Field(id FieldID) (FieldValue, bool)
	// Fields returns the present field ids in arrival order.
	Fields() []FieldID
	Levels() []LevelAction
}

// RawMessage is the in-process Message implementation produced by sources.
type RawMessage struct {
	msgType  MsgType
	status   MsgStatus
	seqNum   uint64
	symbol   string
	sendTime time.Time

	values map[FieldID]FieldValue
	order  []FieldID
	levels []LevelAction
}

func NewRawMessage(msgType MsgType, symbol string, seqNum uint64) *RawMessage {
	return &RawMessage{
		msgType: msgType,
		symbol:  symbol,
		seqNum:  seqNum,
		values:  make(map[FieldID]FieldValue),
	}
}

func (m *RawMessage) WithStatus(status MsgStatus) *RawMessage {
	m.status = status
	return m
}

func (m *RawMessage) WithTime(t time.Time) *RawMessage {
	m.sendTime = t
	return m
}

// Set stores a field value; setting a present field again keeps its
// original position.
func (m *RawMessage) Set(id FieldID, v FieldValue) *RawMessage {
	if _, ok := m.values[id]; !ok {
		m.order = append(m.order, id)
	}
	m.values[id] = v
	return m
}

func (m *RawMessage) AddLevel(l LevelAction) *RawMessage {
	m.levels = append(m.levels, l)
	return m
}

func (m *RawMessage) Type() MsgType     { return m.msgType }
func (m *RawMessage) Status() MsgStatus { return m.status }
func (m *RawMessage) SeqNum() uint64    { return m.seqNum }
func (m *RawMessage) Symbol() string    { return m.symbol }
func (m *RawMessage) Time() time.Time   { return m.sendTime }

func (m *RawMessage) Field(id FieldID) (FieldValue, bool) {
	v, ok := m.values[id]
	return v, ok
}

func (m *RawMessage) Fields() []FieldID {
	out := make([]FieldID, len(m.order))
	copy(out, m.order)
	return out
}

func (m *RawMessage) Levels() []LevelAction {
	return m.levels
}

func (m *RawMessage) String() string {
	return fmt.Sprintf("%s %s seq=%d fields=%d levels=%d", m.msgType, m.symbol, m.seqNum, len(m.order), len(m.levels))
}
