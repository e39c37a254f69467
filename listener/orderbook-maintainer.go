package listener

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"github.com/spooky-finn/go-marketdata-checker/domain"
)

type BookState uint32

const (
	BookEmpty BookState = iota
	BookSynced
)

func (s BookState) String() string {
	if s == BookSynced {
		return "SYNCED"
	}
	return "EMPTY"
}

type BookRecapHandler interface {
	OnBookRecap(ctx SubscriptionContext, msg domain.Message, book *domain.BookSnapshot)
}

type BookDeltaHandler interface {
	OnBookDelta(ctx SubscriptionContext, msg domain.Message, delta *domain.BookDelta, book *domain.OrderBook)
}

type BookClearHandler interface {
	OnBookClear(ctx SubscriptionContext, msg domain.Message)
}

type BookGapHandler interface {
	OnBookGap(ctx SubscriptionContext, msg domain.Message, gap domain.Gap)
}

type BookErrorHandler interface {
	OnBookError(ctx SubscriptionContext, msg domain.Message, err *domain.BookError)
}

// OrderbookMaintainer rebuilds a book from recaps and keeps it current from
// deltas. A gap drops it back to EMPTY until the next recap; a structural
// error is reported and the offending message is skipped.
type OrderbookMaintainer struct {
	ctx    SubscriptionContext
	opts   Options
	logger *slog.Logger

	book    *domain.OrderBook
	monitor *domain.SequenceMonitor
	state   atomic.Uint32

	pending        deque.Deque[domain.Message]
	recapRequested bool
	lastStatus     domain.MsgStatus

	recapHandlers registry[BookRecapHandler]
	deltaHandlers registry[BookDeltaHandler]
	clearHandlers registry[BookClearHandler]
	gapHandlers   registry[BookGapHandler]
	errorHandlers registry[BookErrorHandler]
	quality       registry[QualityHandler]
}

func NewOrderBookMaintainer(ctx SubscriptionContext, book *domain.OrderBook, opts Options) (*OrderbookMaintainer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if book == nil {
		return nil, &domain.ConfigError{Field: "book", Err: errors.New("order book is required")}
	}

	return &OrderbookMaintainer{
		ctx:     ctx,
		opts:    opts,
		logger:  opts.logger("orderbook-maintainer", ctx),
		book:    book,
		monitor: domain.NewSequenceMonitor(true),
	}, nil
}

func (m *OrderbookMaintainer) AddHandler(h any) error {
	matched := register(&m.recapHandlers, h)
	matched = register(&m.deltaHandlers, h) || matched
	matched = register(&m.clearHandlers, h) || matched
	matched = register(&m.gapHandlers, h) || matched
	matched = register(&m.errorHandlers, h) || matched
	matched = register(&m.quality, h) || matched
	if !matched {
		return fmt.Errorf("%T implements no order book handler interface", h)
	}
	return nil
}

func (m *OrderbookMaintainer) Book() *domain.OrderBook {
	return m.book
}

// State is safe to call from any goroutine.
func (m *OrderbookMaintainer) State() BookState {
	return BookState(m.state.Load())
}

func (m *OrderbookMaintainer) Synced() bool {
	return m.State() == BookSynced
}

func (m *OrderbookMaintainer) HandleMessage(msg domain.Message) {
	if !msg.Type().IsBook() {
		m.pass(msg)
		return
	}
	m.checkQuality(msg)

	switch {
	case msg.Type() == domain.MsgBookClear:
		m.clear(msg)
	case msg.Type().IsRecap():
		m.recap(msg)
	case m.State() != BookSynced:
		m.admit(msg)
	default:
		m.delta(msg)
	}
}

// Reset empties the book and forgets the sequence cursor.
func (m *OrderbookMaintainer) Reset() {
	m.book.Clear(0, time.Time{})
	m.monitor.Reset(m.ctx.Symbol)
	m.pending.Clear()
	m.setState(BookEmpty)
	m.recapRequested = false
}

func (m *OrderbookMaintainer) recap(msg domain.Message) {
	m.monitor.Observe(msg)
	m.opts.Metrics.Message("book", "recap")

	if err := m.book.Rebuild(msg.SeqNum(), msg.Time(), msg.Levels()); err != nil {
		m.setState(BookEmpty)
		m.fail(msg, err)
		return
	}

	m.setState(BookSynced)
	m.recapRequested = false
	m.logger.Debug("book_recap", "seq", msg.SeqNum(),
		"bids", m.book.Depth(domain.SideBid), "asks", m.book.Depth(domain.SideAsk))

	snap := m.book.TakeSnapshot(0)
	m.recapHandlers.each(func(h BookRecapHandler) { h.OnBookRecap(m.ctx, msg, snap) })

	for m.pending.Len() > 0 && m.State() == BookSynced {
		next := m.pending.PopFront()
		if next.SeqNum() <= msg.SeqNum() {
			continue
		}
		if !next.Type().IsBook() {
			m.pass(next)
			continue
		}
		m.delta(next)
	}
}

// pass steps over a non-book message of the symbol. It shares the book's
// sequence, so it moves the cursor and can reveal a gap.
func (m *OrderbookMaintainer) pass(msg domain.Message) {
	if m.State() != BookSynced {
		if m.opts.PreRecap == PreRecapBuffer {
			m.buffer(msg)
		}
		return
	}
	class, gap := m.monitor.Classify(msg.Symbol(), msg.SeqNum(), false)
	if class == domain.SeqGap {
		m.gapped(msg, gap)
	}
}

func (m *OrderbookMaintainer) buffer(msg domain.Message) {
	if m.opts.MaxBuffered > 0 && m.pending.Len() >= m.opts.MaxBuffered {
		m.pending.PopFront()
	}
	m.pending.PushBack(msg)
}

// clear empties both sides; an empty book is still in sync.
func (m *OrderbookMaintainer) clear(msg domain.Message) {
	m.monitor.Classify(msg.Symbol(), msg.SeqNum(), true)
	m.book.Clear(msg.SeqNum(), msg.Time())
	m.setState(BookSynced)
	m.clearHandlers.each(func(h BookClearHandler) { h.OnBookClear(m.ctx, msg) })
}

func (m *OrderbookMaintainer) admit(msg domain.Message) {
	policy := m.opts.PreRecap
	m.opts.Metrics.PreRecap("book", policy.String())

	switch policy {
	case PreRecapBuffer:
		m.buffer(msg)
	case PreRecapRequestRecap:
		m.requestRecap("pre_recap")
	}
	m.logger.Debug("delta_before_recap", "seq", msg.SeqNum(), "policy", policy.String())
}

func (m *OrderbookMaintainer) delta(msg domain.Message) {
	class, gap := m.monitor.Observe(msg)
	m.opts.Metrics.Message("book", class.String())

	switch class {
	case domain.SeqDuplicate:
		m.opts.Metrics.Duplicate("book", m.ctx.Symbol)
		m.logger.Debug("duplicate_delta", "seq", msg.SeqNum())
		return
	case domain.SeqGap:
		m.gapped(msg, gap)
		return
	}

	delta, err := m.book.ApplyDelta(msg.SeqNum(), msg.Time(), msg.Levels())
	if err != nil {
		m.fail(msg, err)
		return
	}
	m.deltaHandlers.each(func(h BookDeltaHandler) { h.OnBookDelta(m.ctx, msg, delta, m.book) })
}

// gapped drops the book to EMPTY until the next recap.
func (m *OrderbookMaintainer) gapped(msg domain.Message, gap domain.Gap) {
	m.opts.Metrics.Gap("book", m.ctx.Symbol, gap.Len())
	m.logger.Warn("book_gap", "from", gap.From, "to", gap.To, "seq", msg.SeqNum(), "type", msg.Type().String())
	m.setState(BookEmpty)
	m.monitor.Reset(msg.Symbol())
	if m.opts.PreRecap == PreRecapBuffer {
		m.buffer(msg)
	}
	m.gapHandlers.each(func(h BookGapHandler) { h.OnBookGap(m.ctx, msg, gap) })
	if m.opts.RecapOnGap {
		m.requestRecap("gap")
	}
}

func (m *OrderbookMaintainer) fail(msg domain.Message, err error) {
	var bookErr *domain.BookError
	if !errors.As(err, &bookErr) {
		bookErr = &domain.BookError{Op: "apply", SeqNum: msg.SeqNum(), Err: err}
	}
	m.opts.Metrics.BookError(m.ctx.Symbol)
	m.logger.Error("book_error", "seq", msg.SeqNum(), "error", bookErr)
	m.errorHandlers.each(func(h BookErrorHandler) { h.OnBookError(m.ctx, msg, bookErr) })
}

func (m *OrderbookMaintainer) requestRecap(reason string) {
	if m.recapRequested || m.opts.Requester == nil {
		return
	}
	m.recapRequested = true
	if err := m.opts.Requester.RequestRecap(m.ctx.Symbol); err != nil {
		m.recapRequested = false
		m.logger.Error("recap_request_failed", "reason", reason, "error", err)
		return
	}
	m.logger.Info("recap_requested", "reason", reason)
}

func (m *OrderbookMaintainer) checkQuality(msg domain.Message) {
	status := msg.Status()
	if status == m.lastStatus {
		return
	}
	m.lastStatus = status
	m.quality.each(func(h QualityHandler) { h.OnQuality(m.ctx, msg, status) })
}

func (m *OrderbookMaintainer) setState(s BookState) {
	m.state.Store(uint32(s))
}
