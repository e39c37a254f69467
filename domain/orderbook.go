package domain

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Entry struct {
	ID   string
	Size decimal.Decimal
	Time time.Time
}

// PriceLevel aggregates the resting size at one price. With entry tracking
// enabled Entries holds the individual orders in arrival order and Size is
// always their sum.
type PriceLevel struct {
	Side       Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	NumEntries int
	Time       time.Time
	Entries    []Entry
}

func (l *PriceLevel) Entry(id string) (Entry, bool) {
	if i := l.entryIndex(id); i >= 0 {
		return l.Entries[i], true
	}
	return Entry{}, false
}

func (l *PriceLevel) entryIndex(id string) int {
	for i := range l.Entries {
		if l.Entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *PriceLevel) entriesSize() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range l.Entries {
		sum = sum.Add(e.Size)
	}
	return sum
}

func (l *PriceLevel) isEmpty() bool {
	return l.Size.IsZero() && l.NumEntries == 0 && len(l.Entries) == 0
}

func (l *PriceLevel) copy() PriceLevel {
	c := *l
	if len(l.Entries) > 0 {
		c.Entries = make([]Entry, len(l.Entries))
		copy(c.Entries, l.Entries)
	} else {
		c.Entries = nil
	}
	return c
}

// bookSide keeps levels sorted best first: bids descending, asks ascending.
type bookSide struct {
	side   Side
	levels []*PriceLevel
}

func (s *bookSide) search(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool {
		if s.side == SideBid {
			return s.levels[i].Price.LessThanOrEqual(price)
		}
		return s.levels[i].Price.GreaterThanOrEqual(price)
	})
	return i, i < len(s.levels) && s.levels[i].Price.Equal(price)
}

func (s *bookSide) insert(i int, l *PriceLevel) {
	s.levels = append(s.levels, nil)
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = l
}

func (s *bookSide) remove(i int) {
	s.levels = append(s.levels[:i], s.levels[i+1:]...)
}

func (s *bookSide) clone() *bookSide {
	levels := make([]*PriceLevel, len(s.levels))
	copy(levels, s.levels)
	return &bookSide{side: s.side, levels: levels}
}

func (s *bookSide) snapshot(limit int) []PriceLevel {
	levels := limitDepth(s.levels, limit)
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = l.copy()
	}
	return out
}

type EntryDelta struct {
	Action Action
	Entry  Entry
}

// LevelDelta is the resolved effect of one level action: an ADD for an
// existing price reports UPDATE, an UPDATE that empties a level reports
// DELETE. Level is the level as left by the action.
type LevelDelta struct {
	Action  Action
	Level   PriceLevel
	Entries []EntryDelta
}

type BookDelta struct {
	SeqNum uint64
	Levels []LevelDelta
}

type BookSnapshot struct {
	Symbol       string
	SeqNum       uint64
	Generation   uint64
	Time         time.Time
	TrackEntries bool
	Bids         []PriceLevel
	Asks         []PriceLevel
}

func (s *BookSnapshot) Side(side Side) []PriceLevel {
	if side == SideAsk {
		return s.Asks
	}
	return s.Bids
}

type BookOption func(*OrderBook)

func WithEntryTracking() BookOption {
	return func(ob *OrderBook) { ob.trackEntries = true }
}

// WithCrossCheck rejects any message that leaves the best bid at or above
// the best ask.
func WithCrossCheck() BookOption {
	return func(ob *OrderBook) { ob.crossCheck = true }
}

// OrderBook is a price-level book with optional per-entry detail.
//
// It has a single writer, the queue that owns the subscription; every
// message is applied to a copy-on-write transaction and published under the
// write lock, so readers on other goroutines only ever observe fully applied
// messages. Generation increases with every published change.
type OrderBook struct {
	Symbol string

	trackEntries bool
	crossCheck   bool

	mu         sync.RWMutex
	bids       *bookSide
	asks       *bookSide
	seqNum     uint64
	updateTime time.Time
	generation uint64
}

func NewOrderBook(symbol string, opts ...BookOption) *OrderBook {
	ob := &OrderBook{
		Symbol: symbol,
		bids:   &bookSide{side: SideBid},
		asks:   &bookSide{side: SideAsk},
	}
	for _, opt := range opts {
		opt(ob)
	}
	return ob
}

func (ob *OrderBook) TrackEntries() bool {
	return ob.trackEntries
}

// Rebuild replaces the whole book with levels. On error the book keeps its
// previous content.
func (ob *OrderBook) Rebuild(seqNum uint64, t time.Time, levels []LevelAction) error {
	txn := ob.begin(seqNum, true)
	for _, a := range levels {
		a.Action = ActionAdd
		if err := txn.apply(a); err != nil {
			return err
		}
	}
	if err := txn.checkCrossed(); err != nil {
		return err
	}
	ob.commit(txn, t)
	return nil
}

// ApplyDelta applies all level actions of one message or none of them.
func (ob *OrderBook) ApplyDelta(seqNum uint64, t time.Time, levels []LevelAction) (*BookDelta, error) {
	txn := ob.begin(seqNum, false)
	for _, a := range levels {
		if err := txn.apply(a); err != nil {
			return nil, err
		}
	}
	if err := txn.checkCrossed(); err != nil {
		return nil, err
	}
	ob.commit(txn, t)
	return txn.delta, nil
}

func (ob *OrderBook) Clear(seqNum uint64, t time.Time) {
	ob.commit(ob.begin(seqNum, true), t)
}

func (ob *OrderBook) SeqNum() uint64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.seqNum
}

func (ob *OrderBook) Generation() uint64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.generation
}

func (ob *OrderBook) UpdateTime() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.updateTime
}

func (ob *OrderBook) Depth(side Side) int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.sideOf(side).levels)
}

func (ob *OrderBook) Level(side Side, price decimal.Decimal) (PriceLevel, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	s := ob.sideOf(side)
	i, found := s.search(price)
	if !found {
		return PriceLevel{}, false
	}
	return s.levels[i].copy(), true
}

func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	return ob.best(SideBid)
}

func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	return ob.best(SideAsk)
}

func (ob *OrderBook) best(side Side) (PriceLevel, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	s := ob.sideOf(side)
	if len(s.levels) == 0 {
		return PriceLevel{}, false
	}
	return s.levels[0].copy(), true
}

// TakeSnapshot deep-copies up to limit levels per side; limit <= 0 copies
// everything.
func (ob *OrderBook) TakeSnapshot(limit int) *BookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return &BookSnapshot{
		Symbol:       ob.Symbol,
		SeqNum:       ob.seqNum,
		Generation:   ob.generation,
		Time:         ob.updateTime,
		TrackEntries: ob.trackEntries,
		Bids:         ob.bids.snapshot(limit),
		Asks:         ob.asks.snapshot(limit),
	}
}

func (ob *OrderBook) sideOf(side Side) *bookSide {
	if side == SideAsk {
		return ob.asks
	}
	return ob.bids
}

func (ob *OrderBook) begin(seqNum uint64, fresh bool) *bookTxn {
	txn := &bookTxn{
		trackEntries: ob.trackEntries,
		crossCheck:   ob.crossCheck,
		seqNum:       seqNum,
		owned:        make(map[*PriceLevel]struct{}),
		delta:        &BookDelta{SeqNum: seqNum},
	}
	if fresh {
		txn.bids = &bookSide{side: SideBid}
		txn.asks = &bookSide{side: SideAsk}
		return txn
	}

	ob.mu.RLock()
	txn.bids = ob.bids.clone()
	txn.asks = ob.asks.clone()
	ob.mu.RUnlock()
	return txn
}

func (ob *OrderBook) commit(txn *bookTxn, t time.Time) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids = txn.bids
	ob.asks = txn.asks
	ob.seqNum = txn.seqNum
	if !t.IsZero() {
		ob.updateTime = t
	}
	ob.generation++
}

// bookTxn works on shallow copies of both sides; a level is cloned the
// first time the transaction mutates it so the published book is never
// touched before commit.
type bookTxn struct {
	trackEntries bool
	crossCheck   bool
	seqNum       uint64

	bids  *bookSide
	asks  *bookSide
	owned map[*PriceLevel]struct{}
	delta *BookDelta
}

func (txn *bookTxn) apply(a LevelAction) error {
	var side *bookSide
	switch a.Side {
	case SideBid:
		side = txn.bids
	case SideAsk:
		side = txn.asks
	default:
		return txn.fail("apply", a, "", ErrUnknownSide, "", "")
	}

	i, found := side.search(a.Price)
	switch a.Action {
	case ActionAdd, ActionUpdate:
		if !found {
			return txn.addLevel(side, i, a)
		}
		return txn.updateLevel(side, i, a)
	case ActionDelete:
		if !found {
			return txn.fail("delete", a, "", ErrLevelNotFound, "", "")
		}
		return txn.deleteLevel(side, i, a)
	}
	return txn.fail("apply", a, "", fmt.Errorf("unknown action %d", a.Action), "", "")
}

func (txn *bookTxn) addLevel(side *bookSide, i int, a LevelAction) error {
	lvl := &PriceLevel{Side: a.Side, Price: a.Price, Time: a.Time}
	txn.owned[lvl] = struct{}{}

	entries, err := txn.applyEntries("add", lvl, a)
	if err != nil {
		return err
	}
	if err := txn.settle("add", lvl, a); err != nil {
		return err
	}
	if lvl.isEmpty() {
		return nil
	}

	side.insert(i, lvl)
	txn.record(ActionAdd, lvl, entries)
	return nil
}

func (txn *bookTxn) updateLevel(side *bookSide, i int, a LevelAction) error {
	lvl := txn.mutable(side, i)

	entries, err := txn.applyEntries("update", lvl, a)
	if err != nil {
		return err
	}
	if err := txn.settle("update", lvl, a); err != nil {
		return err
	}
	if !a.Time.IsZero() {
		lvl.Time = a.Time
	}

	if lvl.isEmpty() {
		side.remove(i)
		txn.record(ActionDelete, lvl, entries)
		return nil
	}
	txn.record(ActionUpdate, lvl, entries)
	return nil
}

func (txn *bookTxn) deleteLevel(side *bookSide, i int, a LevelAction) error {
	lvl := txn.mutable(side, i)

	entries, err := txn.applyEntries("delete", lvl, a)
	if err != nil {
		return err
	}
	if txn.trackEntries && len(lvl.Entries) > 0 {
		return txn.fail("delete", a, "", ErrLevelHasEntries,
			"0 entries", fmt.Sprintf("%d entries", len(lvl.Entries)))
	}

	side.remove(i)
	txn.record(ActionDelete, lvl, entries)
	return nil
}

func (txn *bookTxn) applyEntries(op string, lvl *PriceLevel, a LevelAction) ([]EntryDelta, error) {
	if !txn.trackEntries || len(a.Entries) == 0 {
		return nil, nil
	}

	deltas := make([]EntryDelta, 0, len(a.Entries))
	for _, e := range a.Entries {
		j := lvl.entryIndex(e.ID)
		switch e.Action {
		case ActionAdd, ActionUpdate:
			entry := Entry{ID: e.ID, Size: e.Size, Time: e.Time}
			if j < 0 {
				lvl.Entries = append(lvl.Entries, entry)
				deltas = append(deltas, EntryDelta{Action: ActionAdd, Entry: entry})
			} else {
				lvl.Entries[j] = entry
				deltas = append(deltas, EntryDelta{Action: ActionUpdate, Entry: entry})
			}
		case ActionDelete:
			if j < 0 {
				return nil, txn.fail(op, a, e.ID, ErrEntryNotFound, "", "")
			}
			removed := lvl.Entries[j]
			lvl.Entries = append(lvl.Entries[:j], lvl.Entries[j+1:]...)
			deltas = append(deltas, EntryDelta{Action: ActionDelete, Entry: removed})
		}
	}
	return deltas, nil
}

// settle derives the level aggregates. With entry tracking the sum of the
// entries wins and a non-zero size on the action has to agree with it.
func (txn *bookTxn) settle(op string, lvl *PriceLevel, a LevelAction) error {
	if !txn.trackEntries {
		lvl.Size = a.Size
		lvl.NumEntries = a.NumEntries
		return nil
	}

	sum := lvl.entriesSize()
	if !a.Size.IsZero() && !a.Size.Equal(sum) {
		return txn.fail(op, a, "", ErrSizeMismatch, sum.String(), a.Size.String())
	}
	lvl.Size = sum
	lvl.NumEntries = len(lvl.Entries)
	return nil
}

func (txn *bookTxn) mutable(side *bookSide, i int) *PriceLevel {
	lvl := side.levels[i]
	if _, ok := txn.owned[lvl]; ok {
		return lvl
	}
	c := lvl.copy()
	side.levels[i] = &c
	txn.owned[&c] = struct{}{}
	return &c
}

func (txn *bookTxn) record(action Action, lvl *PriceLevel, entries []EntryDelta) {
	txn.delta.Levels = append(txn.delta.Levels, LevelDelta{
		Action:  action,
		Level:   lvl.copy(),
		Entries: entries,
	})
}

func (txn *bookTxn) checkCrossed() error {
	if !txn.crossCheck || len(txn.bids.levels) == 0 || len(txn.asks.levels) == 0 {
		return nil
	}
	bid, ask := txn.bids.levels[0], txn.asks.levels[0]
	if bid.Price.LessThan(ask.Price) {
		return nil
	}
	return &BookError{
		Op:       "cross",
		Side:     SideBid,
		Price:    bid.Price,
		Expected: "< " + ask.Price.String(),
		Actual:   bid.Price.String(),
		SeqNum:   txn.seqNum,
		Err:      ErrCrossedBook,
	}
}

func (txn *bookTxn) fail(op string, a LevelAction, entryID string, err error, expected, actual string) *BookError {
	return &BookError{
		Op:       op,
		Side:     a.Side,
		Price:    a.Price,
		EntryID:  entryID,
		Expected: expected,
		Actual:   actual,
		SeqNum:   txn.seqNum,
		Err:      err,
	}
}

func limitDepth[T any](depth []T, limit int) []T {
	if limit > 0 && len(depth) > limit {
		return depth[:limit]
	}
	return depth
}
