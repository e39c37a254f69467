package listener

import (
	"fmt"
	"strings"
	"time"

	"github.com/spooky-finn/go-marketdata-checker/domain"
)

var secStatusFields = []domain.FieldID{
	domain.FieldSecStatus,
	domain.FieldSecStatusReason,
	domain.FieldSecStatusTime,
}

type SecurityStatus uint8

const (
	SecStatusUnknown SecurityStatus = iota
	SecStatusNormal
	SecStatusHalted
	SecStatusClosed
	SecStatusSuspended
	SecStatusAuction
	SecStatusDeleted
)

var securityStatusNames = []string{"UNKNOWN", "NORMAL", "HALTED", "CLOSED", "SUSPENDED", "AUCTION", "DELETED"}

func (s SecurityStatus) String() string {
	if int(s) < len(securityStatusNames) {
		return securityStatusNames[s]
	}
	return fmt.Sprintf("SecurityStatus(%d)", s)
}

// ParseSecurityStatus maps unrecognised text to SecStatusUnknown.
func ParseSecurityStatus(s string) SecurityStatus {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range securityStatusNames {
		if name == s {
			return SecurityStatus(i)
		}
	}
	return SecStatusUnknown
}

type SecStatusRecapHandler interface {
	OnSecStatusRecap(ctx SubscriptionContext, msg domain.Message, recap *SecStatusRecap)
}

type SecStatusUpdateHandler interface {
	OnSecStatusUpdate(ctx SubscriptionContext, msg domain.Message, update *SecStatusUpdate)
}

type SecStatusGapHandler interface {
	OnSecStatusGap(ctx SubscriptionContext, msg domain.Message, gap domain.Gap, recap *SecStatusRecap)
}

type SecStatusDuplicateHandler interface {
	OnSecStatusDuplicate(ctx SubscriptionContext, msg domain.Message, cursor uint64)
}

type SecStatusRecap struct {
	SeqNum     uint64
	Time       time.Time
	Status     SecurityStatus
	StatusText string
	Reason     string
	StatusTime time.Time
	Fields     []domain.FieldRecord
}

type SecStatusUpdate struct {
	SeqNum   uint64
	Modified []domain.FieldRecord
	Previous SecurityStatus
	Status   *SecStatusRecap
	Recap    *SecStatusRecap
}

type SecStatusListener struct {
	*fieldListener

	lastRecap *SecStatusRecap
	current   SecurityStatus

	recapHandlers     registry[SecStatusRecapHandler]
	updateHandlers    registry[SecStatusUpdateHandler]
	gapHandlers       registry[SecStatusGapHandler]
	duplicateHandlers registry[SecStatusDuplicateHandler]
}

func NewSecStatusListener(ctx SubscriptionContext, opts Options) (*SecStatusListener, error) {
	base, err := newFieldListener("secstatus", ctx, opts, secStatusFields)
	if err != nil {
		return nil, err
	}

	l := &SecStatusListener{fieldListener: base}
	base.onRecap = l.recapped
	base.onUpdate = l.updated
	base.onGap = l.gapped
	base.onDuplicate = l.duplicated
	return l, nil
}

func (l *SecStatusListener) AddHandler(h any) error {
	matched := register(&l.recapHandlers, h)
	matched = register(&l.updateHandlers, h) || matched
	matched = register(&l.gapHandlers, h) || matched
	matched = register(&l.duplicateHandlers, h) || matched
	matched = register(&l.quality, h) || matched
	if !matched {
		return fmt.Errorf("%T implements no security status handler interface", h)
	}
	return nil
}

func (l *SecStatusListener) HandleMessage(msg domain.Message) {
	l.handle(msg)
}

func (l *SecStatusListener) State() ListenerState {
	return l.state
}

func (l *SecStatusListener) Status() SecurityStatus {
	return l.current
}

func (l *SecStatusListener) Reset() {
	l.reset()
	l.lastRecap = nil
	l.current = SecStatusUnknown
}

func (l *SecStatusListener) recapped(msg domain.Message) {
	recap := l.view(msg.SeqNum(), msg.Time())
	l.lastRecap = recap
	l.current = recap.Status
	l.recapHandlers.each(func(h SecStatusRecapHandler) { h.OnSecStatusRecap(l.ctx, msg, recap) })
}

func (l *SecStatusListener) updated(msg domain.Message) {
	l.nextCycle(false)
	switch msg.Type() {
	case domain.MsgCancel, domain.MsgCorrection:
		return
	}
	if l.apply(msg) == 0 {
		return
	}

	status := l.view(msg.SeqNum(), msg.Time())
	update := &SecStatusUpdate{
		SeqNum:   msg.SeqNum(),
		Modified: l.tracker.Modified(),
		Previous: l.current,
		Status:   status,
		Recap:    l.lastRecap,
	}
	l.current = status.Status
	if len(update.Modified) == 0 {
		return
	}
	l.updateHandlers.each(func(h SecStatusUpdateHandler) { h.OnSecStatusUpdate(l.ctx, msg, update) })
}

func (l *SecStatusListener) gapped(msg domain.Message, gap domain.Gap) {
	l.gapHandlers.each(func(h SecStatusGapHandler) { h.OnSecStatusGap(l.ctx, msg, gap, l.lastRecap) })
}

func (l *SecStatusListener) duplicated(msg domain.Message, cursor uint64) {
	l.duplicateHandlers.each(func(h SecStatusDuplicateHandler) { h.OnSecStatusDuplicate(l.ctx, msg, cursor) })
}

func (l *SecStatusListener) view(seq uint64, t time.Time) *SecStatusRecap {
	text := valueOf(l.tracker, domain.FieldSecStatus).Str
	return &SecStatusRecap{
		SeqNum:     seq,
		Time:       t,
		Status:     ParseSecurityStatus(text),
		StatusText: text,
		Reason:     valueOf(l.tracker, domain.FieldSecStatusReason).Str,
		StatusTime: valueOf(l.tracker, domain.FieldSecStatusTime).Time,
		Fields:     l.tracker.Fields(),
	}
}
