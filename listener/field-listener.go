package listener

import (
	"log/slog"

	"github.com/gammazero/deque"
	"github.com/spooky-finn/go-marketdata-checker/domain"
)

// fieldListener is the recap/update state machine shared by the quote,
// trade and security status listeners. The concrete listener supplies the
// set of fields it tracks and the callbacks run after sequencing.
type fieldListener struct {
	name   string
	ctx    SubscriptionContext
	opts   Options
	logger *slog.Logger

	fields  map[domain.FieldID]struct{}
	tracker *domain.FieldStateTracker
	monitor *domain.SequenceMonitor

	state          ListenerState
	cycle          uint64
	pending        deque.Deque[domain.Message]
	recapRequested bool
	lastStatus     domain.MsgStatus

	quality registry[QualityHandler]

	onRecap     func(msg domain.Message)
	onUpdate    func(msg domain.Message)
	onGap       func(msg domain.Message, gap domain.Gap)
	onDuplicate func(msg domain.Message, cursor uint64)
}

func newFieldListener(name string, ctx SubscriptionContext, opts Options, fields []domain.FieldID) (*fieldListener, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	set := make(map[domain.FieldID]struct{}, len(fields))
	for _, id := range fields {
		set[id] = struct{}{}
	}

	return &fieldListener{
		name:    name,
		ctx:     ctx,
		opts:    opts,
		logger:  opts.logger(name+"-listener", ctx),
		fields:  set,
		tracker: domain.NewFieldStateTracker(),
		monitor: domain.NewSequenceMonitor(opts.PreRecap != PreRecapAccept),
	}, nil
}

func (l *fieldListener) handle(msg domain.Message) {
	if msg.Type().IsBook() {
		l.pass(msg)
		return
	}
	l.checkQuality(msg)

	if msg.Type().IsRecap() {
		l.recap(msg)
		return
	}
	if l.state != StateRecapped && !l.admit(msg) {
		return
	}
	l.sequence(msg)
}

func (l *fieldListener) recap(msg domain.Message) {
	l.monitor.Observe(msg)
	l.opts.Metrics.Message(l.name, "recap")

	l.nextCycle(true)
	l.apply(msg)
	l.state = StateRecapped
	l.recapRequested = false

	if l.onRecap != nil {
		l.onRecap(msg)
	}
	l.replay(msg.SeqNum())
}

// replay feeds buffered pre-recap updates that are newer than the recap.
func (l *fieldListener) replay(recapSeq uint64) {
	for l.pending.Len() > 0 {
		msg := l.pending.PopFront()
		if msg.SeqNum() <= recapSeq {
			continue
		}
		if msg.Type().IsBook() {
			l.advance(msg)
			continue
		}
		l.sequence(msg)
	}
}

// pass steps over a book message. Book and field messages of a symbol
// share one sequence, so the cursor moves even though nothing is applied.
func (l *fieldListener) pass(msg domain.Message) {
	if l.state != StateRecapped && l.opts.PreRecap != PreRecapAccept {
		if l.opts.PreRecap == PreRecapBuffer {
			l.buffer(msg)
		}
		return
	}
	l.advance(msg)
}

func (l *fieldListener) advance(msg domain.Message) {
	class, gap := l.monitor.Classify(msg.Symbol(), msg.SeqNum(), false)
	if class == domain.SeqGap {
		l.reportGap(msg, gap)
	}
}

func (l *fieldListener) buffer(msg domain.Message) {
	if l.opts.MaxBuffered > 0 && l.pending.Len() >= l.opts.MaxBuffered {
		dropped := l.pending.PopFront()
		l.logger.Warn("pre_recap_buffer_full", "dropped_seq", dropped.SeqNum())
	}
	l.pending.PushBack(msg)
}

// admit applies the pre-recap policy and reports whether msg may proceed.
func (l *fieldListener) admit(msg domain.Message) bool {
	policy := l.opts.PreRecap
	l.opts.Metrics.PreRecap(l.name, policy.String())

	switch policy {
	case PreRecapAccept:
		return true
	case PreRecapBuffer:
		l.buffer(msg)
	case PreRecapRequestRecap:
		l.requestRecap("pre_recap")
	}

	l.logger.Debug("update_before_recap", "seq", msg.SeqNum(), "policy", policy.String())
	return false
}

func (l *fieldListener) sequence(msg domain.Message) {
	class, gap := l.monitor.Observe(msg)
	l.opts.Metrics.Message(l.name, class.String())

	switch class {
	case domain.SeqDuplicate:
		cur, _ := l.monitor.Cursor(msg.Symbol())
		l.opts.Metrics.Duplicate(l.name, l.ctx.Symbol)
		l.logger.Debug("duplicate_message", "seq", msg.SeqNum(), "cursor", cur.SeqNum)
		if l.onDuplicate != nil {
			l.onDuplicate(msg, cur.SeqNum)
		}
		return
	case domain.SeqUnsynced:
		return
	case domain.SeqGap:
		l.reportGap(msg, gap)
	}

	if l.onUpdate != nil {
		l.onUpdate(msg)
	}
}

func (l *fieldListener) reportGap(msg domain.Message, gap domain.Gap) {
	l.opts.Metrics.Gap(l.name, l.ctx.Symbol, gap.Len())
	l.logger.Warn("sequence_gap", "from", gap.From, "to", gap.To, "seq", msg.SeqNum(), "type", msg.Type().String())
	if l.onGap != nil {
		l.onGap(msg, gap)
	}
	if l.opts.RecapOnGap {
		l.requestRecap("gap")
	}
}

func (l *fieldListener) nextCycle(recap bool) {
	l.cycle++
	l.tracker.Begin(l.cycle, recap)
}

// apply stores every tracked field present in msg and returns how many
// there were.
func (l *fieldListener) apply(msg domain.Message) int {
	n := 0
	for _, id := range msg.Fields() {
		if _, ok := l.fields[id]; !ok {
			continue
		}
		v, _ := msg.Field(id)
		l.tracker.Apply(id, v, l.cycle)
		n++
	}
	return n
}

// derive stores a value computed by the listener rather than received.
func (l *fieldListener) derive(id domain.FieldID, v domain.FieldValue) {
	l.tracker.Apply(id, v, l.cycle)
}

func (l *fieldListener) requestRecap(reason string) {
	if l.recapRequested || l.opts.Requester == nil {
		return
	}
	l.recapRequested = true
	if err := l.opts.Requester.RequestRecap(l.ctx.Symbol); err != nil {
		l.recapRequested = false
		l.logger.Error("recap_request_failed", "reason", reason, "error", err)
		return
	}
	l.logger.Info("recap_requested", "reason", reason)
}

func (l *fieldListener) checkQuality(msg domain.Message) {
	status := msg.Status()
	if status == l.lastStatus {
		return
	}
	l.lastStatus = status
	l.quality.each(func(h QualityHandler) { h.OnQuality(l.ctx, msg, status) })
}

func (l *fieldListener) reset() {
	l.tracker.Reset()
	l.monitor.Reset(l.ctx.Symbol)
	l.pending.Clear()
	l.state = StateUninitialised
	l.cycle = 0
	l.recapRequested = false
	l.lastStatus = domain.StatusOK
}
