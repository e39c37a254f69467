package listener

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spooky-finn/go-marketdata-checker/domain"
)

var tradeFields = []domain.FieldID{
	domain.FieldTradePrice,
	domain.FieldTradeSize,
	domain.FieldTradeTime,
	domain.FieldTradeID,
	domain.FieldTradeCount,
	domain.FieldTotalVolume,
	domain.FieldHighPrice,
	domain.FieldLowPrice,
	domain.FieldOpenPrice,
	domain.FieldClosePrice,
}

type TradeRecapHandler interface {
	OnTradeRecap(ctx SubscriptionContext, msg domain.Message, recap *TradeRecap)
}

type TradeUpdateHandler interface {
	OnTradeUpdate(ctx SubscriptionContext, msg domain.Message, update *TradeUpdate)
}

type TradeGapHandler interface {
	OnTradeGap(ctx SubscriptionContext, msg domain.Message, gap domain.Gap, recap *TradeRecap)
}

type TradeDuplicateHandler interface {
	OnTradeDuplicate(ctx SubscriptionContext, msg domain.Message, cursor uint64)
}

type TradeCancelHandler interface {
	OnTradeCancel(ctx SubscriptionContext, msg domain.Message, cancel *TradeCancel)
}

type TradeCorrectionHandler interface {
	OnTradeCorrection(ctx SubscriptionContext, msg domain.Message, correction *TradeCorrection)
}

type TradeClosingHandler interface {
	OnTradeClosing(ctx SubscriptionContext, msg domain.Message, recap *TradeRecap)
}

// TradeRecap is an immutable view of the last trade and the session
// aggregates.
type TradeRecap struct {
	SeqNum      uint64
	Time        time.Time
	LastPrice   decimal.Decimal
	LastSize    decimal.Decimal
	LastTime    time.Time
	LastID      string
	TradeCount  int64
	TotalVolume decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Open        decimal.Decimal
	Close       decimal.Decimal
	Fields      []domain.FieldRecord
}

type TradeUpdate struct {
	SeqNum   uint64
	Modified []domain.FieldRecord
	Trade    *TradeRecap
	Recap    *TradeRecap
}

func (u *TradeUpdate) IsModified(id domain.FieldID) bool {
	for _, rec := range u.Modified {
		if rec.ID == id {
			return true
		}
	}
	return false
}

type TradeCancel struct {
	SeqNum     uint64
	OrigSeqNum uint64
	ID         string
	Price      decimal.Decimal
	Size       decimal.Decimal
}

type TradeCorrection struct {
	SeqNum     uint64
	OrigSeqNum uint64
	ID         string
	OrigPrice  decimal.Decimal
	OrigSize   decimal.Decimal
	Price      decimal.Decimal
	Size       decimal.Decimal
}

// TradeListener tracks the last trade of a subscription. Volume, count,
// open, high and low are accumulated locally when the feed does not send
// them; cancels and corrections adjust the accumulated volume and count.
type TradeListener struct {
	*fieldListener

	lastRecap *TradeRecap

	recapHandlers      registry[TradeRecapHandler]
	updateHandlers     registry[TradeUpdateHandler]
	gapHandlers        registry[TradeGapHandler]
	duplicateHandlers  registry[TradeDuplicateHandler]
	cancelHandlers     registry[TradeCancelHandler]
	correctionHandlers registry[TradeCorrectionHandler]
	closingHandlers    registry[TradeClosingHandler]
}

func NewTradeListener(ctx SubscriptionContext, opts Options) (*TradeListener, error) {
	base, err := newFieldListener("trade", ctx, opts, tradeFields)
	if err != nil {
		return nil, err
	}

	l := &TradeListener{fieldListener: base}
	base.onRecap = l.recapped
	base.onUpdate = l.updated
	base.onGap = l.gapped
	base.onDuplicate = l.duplicated
	return l, nil
}

func (l *TradeListener) AddHandler(h any) error {
	matched := register(&l.recapHandlers, h)
	matched = register(&l.updateHandlers, h) || matched
	matched = register(&l.gapHandlers, h) || matched
	matched = register(&l.duplicateHandlers, h) || matched
	matched = register(&l.cancelHandlers, h) || matched
	matched = register(&l.correctionHandlers, h) || matched
	matched = register(&l.closingHandlers, h) || matched
	matched = register(&l.quality, h) || matched
	if !matched {
		return fmt.Errorf("%T implements no trade handler interface", h)
	}
	return nil
}

func (l *TradeListener) HandleMessage(msg domain.Message) {
	l.handle(msg)
}

func (l *TradeListener) State() ListenerState {
	return l.state
}

func (l *TradeListener) FieldState(id domain.FieldID) domain.FieldState {
	return l.tracker.State(id)
}

func (l *TradeListener) Trade() *TradeRecap {
	return l.view(0, time.Time{})
}

func (l *TradeListener) Reset() {
	l.reset()
	l.lastRecap = nil
}

func (l *TradeListener) recapped(msg domain.Message) {
	recap := l.view(msg.SeqNum(), msg.Time())
	l.lastRecap = recap
	l.recapHandlers.each(func(h TradeRecapHandler) { h.OnTradeRecap(l.ctx, msg, recap) })
}

func (l *TradeListener) updated(msg domain.Message) {
	l.nextCycle(false)

	switch msg.Type() {
	case domain.MsgCancel:
		l.cancelled(msg)
		return
	case domain.MsgCorrection:
		l.corrected(msg)
		return
	case domain.MsgSecStatus:
		return
	}

	n := l.apply(msg)
	if msg.Type() == domain.MsgClosing {
		trade := l.view(msg.SeqNum(), msg.Time())
		l.closingHandlers.each(func(h TradeClosingHandler) { h.OnTradeClosing(l.ctx, msg, trade) })
		return
	}
	if n == 0 {
		return
	}
	if price, ok := msg.Field(domain.FieldTradePrice); ok {
		l.accumulate(msg, price.Decimal())
	}

	update := &TradeUpdate{
		SeqNum:   msg.SeqNum(),
		Modified: l.tracker.Modified(),
		Trade:    l.view(msg.SeqNum(), msg.Time()),
		Recap:    l.lastRecap,
	}
	l.updateHandlers.each(func(h TradeUpdateHandler) { h.OnTradeUpdate(l.ctx, msg, update) })
}

// accumulate derives the session aggregates the message did not carry.
func (l *TradeListener) accumulate(msg domain.Message, price decimal.Decimal) {
	missing := func(id domain.FieldID) bool {
		_, ok := msg.Field(id)
		return !ok
	}

	if missing(domain.FieldTotalVolume) {
		if size, ok := msg.Field(domain.FieldTradeSize); ok {
			total := valueOf(l.tracker, domain.FieldTotalVolume).Decimal()
			l.derive(domain.FieldTotalVolume, domain.DecimalValue(total.Add(size.Decimal())))
		}
	}
	if missing(domain.FieldTradeCount) {
		count := valueOf(l.tracker, domain.FieldTradeCount).Int
		l.derive(domain.FieldTradeCount, domain.IntValue(count+1))
	}
	if missing(domain.FieldOpenPrice) && l.tracker.State(domain.FieldOpenPrice) == domain.FieldNotInitialised {
		l.derive(domain.FieldOpenPrice, domain.DecimalValue(price))
	}
	if missing(domain.FieldHighPrice) {
		high, st := l.tracker.Value(domain.FieldHighPrice)
		if st == domain.FieldNotInitialised || price.GreaterThan(high.Decimal()) {
			l.derive(domain.FieldHighPrice, domain.DecimalValue(price))
		}
	}
	if missing(domain.FieldLowPrice) {
		low, st := l.tracker.Value(domain.FieldLowPrice)
		if st == domain.FieldNotInitialised || price.LessThan(low.Decimal()) {
			l.derive(domain.FieldLowPrice, domain.DecimalValue(price))
		}
	}
}

func (l *TradeListener) cancelled(msg domain.Message) {
	cancel := &TradeCancel{
		SeqNum:     msg.SeqNum(),
		OrigSeqNum: uint64(fieldOf(msg, domain.FieldOrigSeqNum).Int),
		ID:         fieldOf(msg, domain.FieldTradeID).Str,
		Price:      fieldOf(msg, domain.FieldTradePrice).Decimal(),
		Size:       fieldOf(msg, domain.FieldTradeSize).Decimal(),
	}

	l.adjustVolume(cancel.Size.Neg())
	if count, st := l.tracker.Value(domain.FieldTradeCount); st != domain.FieldNotInitialised && count.Int > 0 {
		l.derive(domain.FieldTradeCount, domain.IntValue(count.Int-1))
	}
	l.cancelHandlers.each(func(h TradeCancelHandler) { h.OnTradeCancel(l.ctx, msg, cancel) })
}

func (l *TradeListener) corrected(msg domain.Message) {
	corr := &TradeCorrection{
		SeqNum:     msg.SeqNum(),
		OrigSeqNum: uint64(fieldOf(msg, domain.FieldOrigSeqNum).Int),
		ID:         fieldOf(msg, domain.FieldTradeID).Str,
		OrigPrice:  fieldOf(msg, domain.FieldTradePrice).Decimal(),
		OrigSize:   fieldOf(msg, domain.FieldTradeSize).Decimal(),
		Price:      fieldOf(msg, domain.FieldCorrPrice).Decimal(),
		Size:       fieldOf(msg, domain.FieldCorrSize).Decimal(),
	}

	l.adjustVolume(corr.Size.Sub(corr.OrigSize))
	l.correctionHandlers.each(func(h TradeCorrectionHandler) { h.OnTradeCorrection(l.ctx, msg, corr) })
}

func (l *TradeListener) adjustVolume(by decimal.Decimal) {
	total, st := l.tracker.Value(domain.FieldTotalVolume)
	if st == domain.FieldNotInitialised || by.IsZero() {
		return
	}
	l.derive(domain.FieldTotalVolume, domain.DecimalValue(total.Decimal().Add(by)))
}

func (l *TradeListener) gapped(msg domain.Message, gap domain.Gap) {
	l.gapHandlers.each(func(h TradeGapHandler) { h.OnTradeGap(l.ctx, msg, gap, l.lastRecap) })
}

func (l *TradeListener) duplicated(msg domain.Message, cursor uint64) {
	l.duplicateHandlers.each(func(h TradeDuplicateHandler) { h.OnTradeDuplicate(l.ctx, msg, cursor) })
}

func (l *TradeListener) view(seq uint64, t time.Time) *TradeRecap {
	return &TradeRecap{
		SeqNum:      seq,
		Time:        t,
		LastPrice:   valueOf(l.tracker, domain.FieldTradePrice).Decimal(),
		LastSize:    valueOf(l.tracker, domain.FieldTradeSize).Decimal(),
		LastTime:    valueOf(l.tracker, domain.FieldTradeTime).Time,
		LastID:      valueOf(l.tracker, domain.FieldTradeID).Str,
		TradeCount:  valueOf(l.tracker, domain.FieldTradeCount).Int,
		TotalVolume: valueOf(l.tracker, domain.FieldTotalVolume).Decimal(),
		High:        valueOf(l.tracker, domain.FieldHighPrice).Decimal(),
		Low:         valueOf(l.tracker, domain.FieldLowPrice).Decimal(),
		Open:        valueOf(l.tracker, domain.FieldOpenPrice).Decimal(),
		Close:       valueOf(l.tracker, domain.FieldClosePrice).Decimal(),
		Fields:      l.tracker.Fields(),
	}
}

func fieldOf(msg domain.Message, id domain.FieldID) domain.FieldValue {
	v, _ := msg.Field(id)
	return v
}
