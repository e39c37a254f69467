package listener

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spooky-finn/go-marketdata-checker/domain"
)

var quoteFields = []domain.FieldID{
	domain.FieldBidPrice,
	domain.FieldBidSize,
	domain.FieldAskPrice,
	domain.FieldAskSize,
	domain.FieldQuoteTime,
	domain.FieldQuoteCount,
}

type QuoteRecapHandler interface {
	OnQuoteRecap(ctx SubscriptionContext, msg domain.Message, recap *QuoteRecap)
}

type QuoteUpdateHandler interface {
	OnQuoteUpdate(ctx SubscriptionContext, msg domain.Message, update *QuoteUpdate)
}

type QuoteGapHandler interface {
	OnQuoteGap(ctx SubscriptionContext, msg domain.Message, gap domain.Gap, recap *QuoteRecap)
}

type QuoteDuplicateHandler interface {
	OnQuoteDuplicate(ctx SubscriptionContext, msg domain.Message, cursor uint64)
}

type QuoteClosingHandler interface {
	OnQuoteClosing(ctx SubscriptionContext, msg domain.Message, recap *QuoteRecap)
}

// QuoteRecap is an immutable view of the full quote state.
type QuoteRecap struct {
	SeqNum     uint64
	Time       time.Time
	BidPrice   decimal.Decimal
	BidSize    decimal.Decimal
	AskPrice   decimal.Decimal
	AskSize    decimal.Decimal
	QuoteTime  time.Time
	QuoteCount int64
	Fields     []domain.FieldRecord
}

// MidPrice is zero unless both sides are quoted.
func (r *QuoteRecap) MidPrice() decimal.Decimal {
	if r.BidPrice.IsZero() || r.AskPrice.IsZero() {
		return decimal.Zero
	}
	return r.BidPrice.Add(r.AskPrice).Div(decimal.NewFromInt(2))
}

func (r *QuoteRecap) Spread() decimal.Decimal {
	if r.BidPrice.IsZero() || r.AskPrice.IsZero() {
		return decimal.Zero
	}
	return r.AskPrice.Sub(r.BidPrice)
}

// QuoteUpdate carries only the fields the message changed, the quote as it
// stands afterwards and the recap it builds on.
type QuoteUpdate struct {
	SeqNum   uint64
	Modified []domain.FieldRecord
	Quote    *QuoteRecap
	Recap    *QuoteRecap
}

func (u *QuoteUpdate) IsModified(id domain.FieldID) bool {
	for _, rec := range u.Modified {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// QuoteListener turns quote fields of a subscription into recap, update,
// gap and closing notifications.
type QuoteListener struct {
	*fieldListener

	lastRecap *QuoteRecap

	recapHandlers     registry[QuoteRecapHandler]
	updateHandlers    registry[QuoteUpdateHandler]
	gapHandlers       registry[QuoteGapHandler]
	duplicateHandlers registry[QuoteDuplicateHandler]
	closingHandlers   registry[QuoteClosingHandler]
}

func NewQuoteListener(ctx SubscriptionContext, opts Options) (*QuoteListener, error) {
	base, err := newFieldListener("quote", ctx, opts, quoteFields)
	if err != nil {
		return nil, err
	}

	l := &QuoteListener{fieldListener: base}
	base.onRecap = l.recapped
	base.onUpdate = l.updated
	base.onGap = l.gapped
	base.onDuplicate = l.duplicated
	return l, nil
}

// AddHandler registers h for every quote capability it implements.
func (l *QuoteListener) AddHandler(h any) error {
	matched := register(&l.recapHandlers, h)
	matched = register(&l.updateHandlers, h) || matched
	matched = register(&l.gapHandlers, h) || matched
	matched = register(&l.duplicateHandlers, h) || matched
	matched = register(&l.closingHandlers, h) || matched
	matched = register(&l.quality, h) || matched
	if !matched {
		return fmt.Errorf("%T implements no quote handler interface", h)
	}
	return nil
}

func (l *QuoteListener) HandleMessage(msg domain.Message) {
	l.handle(msg)
}

func (l *QuoteListener) State() ListenerState {
	return l.state
}

// FieldState reports whether id changed in the last processed message.
func (l *QuoteListener) FieldState(id domain.FieldID) domain.FieldState {
	return l.tracker.State(id)
}

func (l *QuoteListener) Quote() *QuoteRecap {
	return l.view(0, time.Time{})
}

func (l *QuoteListener) Reset() {
	l.reset()
	l.lastRecap = nil
}

func (l *QuoteListener) recapped(msg domain.Message) {
	recap := l.view(msg.SeqNum(), msg.Time())
	l.lastRecap = recap
	l.recapHandlers.each(func(h QuoteRecapHandler) { h.OnQuoteRecap(l.ctx, msg, recap) })
}

func (l *QuoteListener) updated(msg domain.Message) {
	l.nextCycle(false)
	switch msg.Type() {
	case domain.MsgCancel, domain.MsgCorrection, domain.MsgSecStatus:
		return
	}
	n := l.apply(msg)

	if msg.Type() == domain.MsgClosing {
		quote := l.view(msg.SeqNum(), msg.Time())
		l.closingHandlers.each(func(h QuoteClosingHandler) { h.OnQuoteClosing(l.ctx, msg, quote) })
		return
	}
	if n == 0 {
		return
	}

	update := &QuoteUpdate{
		SeqNum:   msg.SeqNum(),
		Modified: l.tracker.Modified(),
		Quote:    l.view(msg.SeqNum(), msg.Time()),
		Recap:    l.lastRecap,
	}
	l.updateHandlers.each(func(h QuoteUpdateHandler) { h.OnQuoteUpdate(l.ctx, msg, update) })
}

func (l *QuoteListener) gapped(msg domain.Message, gap domain.Gap) {
	l.gapHandlers.each(func(h QuoteGapHandler) { h.OnQuoteGap(l.ctx, msg, gap, l.lastRecap) })
}

func (l *QuoteListener) duplicated(msg domain.Message, cursor uint64) {
	l.duplicateHandlers.each(func(h QuoteDuplicateHandler) { h.OnQuoteDuplicate(l.ctx, msg, cursor) })
}

func (l *QuoteListener) view(seq uint64, t time.Time) *QuoteRecap {
	return &QuoteRecap{
		SeqNum:     seq,
		Time:       t,
		BidPrice:   valueOf(l.tracker, domain.FieldBidPrice).Decimal(),
		BidSize:    valueOf(l.tracker, domain.FieldBidSize).Decimal(),
		AskPrice:   valueOf(l.tracker, domain.FieldAskPrice).Decimal(),
		AskSize:    valueOf(l.tracker, domain.FieldAskSize).Decimal(),
		QuoteTime:  valueOf(l.tracker, domain.FieldQuoteTime).Time,
		QuoteCount: valueOf(l.tracker, domain.FieldQuoteCount).Int,
		Fields:     l.tracker.Fields(),
	}
}
