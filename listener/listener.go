package listener

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/spooky-finn/go-marketdata-checker/domain"
	promclient "github.com/spooky-finn/go-marketdata-checker/infrastructure/prometheus"
)

// SubscriptionContext identifies the subscription a notification belongs
// to. It is fixed at registration and handed back with every callback.
type SubscriptionContext struct {
	ID     uuid.UUID
	Source string
	Symbol string
	// Tag is caller data carried through unchanged.
	Tag string
}

func NewSubscriptionContext(key *domain.SubscriptionKey, tag string) SubscriptionContext {
	return SubscriptionContext{
		ID:     uuid.New(),
		Source: key.Source,
		Symbol: key.Symbol,
		Tag:    tag,
	}
}

// MessageHandler is what a subscription feeds every message to.
type MessageHandler interface {
	HandleMessage(msg domain.Message)
}

type ListenerState uint8

const (
	StateUninitialised ListenerState = iota
	StateRecapped
)

func (s ListenerState) String() string {
	if s == StateRecapped {
		return "RECAPPED"
	}
	return "UNINITIALISED"
}

// PreRecapPolicy decides what happens to an update that arrives before the
// listener has seen its first recap.
type PreRecapPolicy uint8

const (
	PreRecapDrop PreRecapPolicy = iota
	// Buffered updates newer than the recap are replayed right after it.
	PreRecapBuffer
	// The update is dropped and one recap is requested from the source.
	PreRecapRequestRecap
	// The update is applied as is. Order books treat this as drop.
	PreRecapAccept
)

func (p PreRecapPolicy) String() string {
	switch p {
	case PreRecapBuffer:
		return "buffer"
	case PreRecapRequestRecap:
		return "request_recap"
	case PreRecapAccept:
		return "accept"
	}
	return "drop"
}

func ParsePreRecapPolicy(s string) (PreRecapPolicy, error) {
	switch s {
	case "", "drop":
		return PreRecapDrop, nil
	case "buffer":
		return PreRecapBuffer, nil
	case "request_recap":
		return PreRecapRequestRecap, nil
	case "accept":
		return PreRecapAccept, nil
	}
	return PreRecapDrop, &domain.ConfigError{Field: "pre_recap_policy", Err: fmt.Errorf("unknown policy %q", s)}
}

type Options struct {
	PreRecap PreRecapPolicy
	// MaxBuffered bounds the pre-recap buffer; the oldest update is
	// discarded beyond it. Zero means unbounded.
	MaxBuffered int
	// RecapOnGap asks Requester for a recap whenever a gap is detected.
	RecapOnGap bool
	Requester  domain.RecapRequester
	Logger     *slog.Logger
	Metrics    *promclient.Metrics
}

func (o Options) validate() error {
	if o.PreRecap == PreRecapRequestRecap && o.Requester == nil {
		return &domain.ConfigError{Field: "pre_recap_policy", Err: fmt.Errorf("request_recap needs a recap requester")}
	}
	if o.RecapOnGap && o.Requester == nil {
		return &domain.ConfigError{Field: "recap_on_gap", Err: fmt.Errorf("needs a recap requester")}
	}
	if o.MaxBuffered < 0 {
		return &domain.ConfigError{Field: "max_buffered", Err: fmt.Errorf("must not be negative")}
	}
	return nil
}

func (o Options) logger(component string, ctx SubscriptionContext) *slog.Logger {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component, "symbol", ctx.Symbol, "subscription", ctx.ID.String())
}

// QualityHandler receives message status changes as reported by the source.
type QualityHandler interface {
	OnQuality(ctx SubscriptionContext, msg domain.Message, status domain.MsgStatus)
}

// registry is an append-only handler list. Callbacks run in registration
// order on the owning queue.
type registry[H any] struct {
	mu sync.RWMutex
	hs []H
}

func (r *registry[H]) add(h H) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hs = append(r.hs, h)
}

func (r *registry[H]) each(fn func(H)) {
	r.mu.RLock()
	hs := r.hs
	r.mu.RUnlock()

	for _, h := range hs {
		fn(h)
	}
}

func (r *registry[H]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hs)
}

// register appends h to reg when it implements H.
func register[H any](reg *registry[H], h any) bool {
	x, ok := h.(H)
	if ok {
		reg.add(x)
	}
	return ok
}

func valueOf(t *domain.FieldStateTracker, id domain.FieldID) domain.FieldValue {
	v, _ := t.Value(id)
	return v
}
