package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/spooky-finn/go-marketdata-checker/dispatch"
	"github.com/spooky-finn/go-marketdata-checker/domain"
	promclient "github.com/spooky-finn/go-marketdata-checker/infrastructure/prometheus"
	"github.com/spooky-finn/go-marketdata-checker/listener"
	"github.com/spooky-finn/go-marketdata-checker/provider"
)

var ErrAlreadySubscribed = errors.New("subscription already exists")

type resetter interface {
	Reset()
}

// MarketDataSubscription binds one entity's stream to one dispatch queue.
// Every handler sees every message in arrival order on that queue.
type MarketDataSubscription struct {
	Context listener.SubscriptionContext
	Key     *domain.SubscriptionKey

	queue    *dispatch.Queue
	handlers []listener.MessageHandler
	stream   *domain.Subscription[domain.Message]

	stopped atomic.Bool
	done    chan struct{}
}

func (s *MarketDataSubscription) QueueID() int {
	return s.queue.ID()
}

func (s *MarketDataSubscription) pump() {
	defer close(s.done)

	for msg := range s.stream.Stream {
		if s.stopped.Load() {
			return
		}
		msg := msg
		if !s.queue.Enqueue(func() { s.dispatch(msg) }) {
			return
		}
	}
}

func (s *MarketDataSubscription) dispatch(msg domain.Message) {
	if s.stopped.Load() {
		return
	}
	for _, h := range s.handlers {
		h.HandleMessage(msg)
	}
}

// MarketDataUseCase owns the live subscriptions and the books they
// maintain.
type MarketDataUseCase struct {
	group   *dispatch.QueueGroup
	storage *domain.OrderBookStorage
	logger  *slog.Logger
	metrics *promclient.Metrics

	mu      sync.Mutex
	sources map[string]provider.Source
	subs    map[uuid.UUID]*MarketDataSubscription
}

func NewMarketDataUseCase(group *dispatch.QueueGroup, logger *slog.Logger, metrics *promclient.Metrics) *MarketDataUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketDataUseCase{
		group:   group,
		storage: domain.NewOrderBookStorage(),
		logger:  logger.With("component", "market-data"),
		metrics: metrics,
		sources: make(map[string]provider.Source),
		subs:    make(map[uuid.UUID]*MarketDataSubscription),
	}
}

func (u *MarketDataUseCase) RegisterSource(name string, src provider.Source) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sources[name] = src
}

func (u *MarketDataUseCase) source(name string) (provider.Source, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	src, ok := u.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, name)
	}
	return src, nil
}

// Subscribe opens the entity's stream on the source named by ctx and binds
// it to the next queue of the group. Order book maintainers among handlers
// are indexed for GetOrderBookSnapshot.
func (u *MarketDataUseCase) Subscribe(ctx listener.SubscriptionContext, handlers ...listener.MessageHandler) (*MarketDataSubscription, error) {
	key, err := domain.NewSubscriptionKey(ctx.Source, ctx.Symbol)
	if err != nil {
		return nil, err
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("subscribe %s: no handlers", key)
	}
	src, err := u.source(key.Source)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	if _, ok := u.subs[ctx.ID]; ok {
		u.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, ctx.ID)
	}
	u.mu.Unlock()

	stream, err := src.Subscribe(key.Symbol)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	s := &MarketDataSubscription{
		Context:  ctx,
		Key:      key,
		queue:    u.group.Next(),
		handlers: handlers,
		stream:   stream,
		done:     make(chan struct{}),
	}

	u.mu.Lock()
	u.subs[ctx.ID] = s
	u.mu.Unlock()

	for _, h := range handlers {
		if m, ok := h.(*listener.OrderbookMaintainer); ok {
			u.storage.Add(key, m.Book())
			u.metrics.BookOpened()
		}
	}

	go s.pump()

	u.logger.Info("subscribed", "key", key.String(), "subscription", ctx.ID, "queue", s.queue.ID())
	return s, nil
}

// Unsubscribe stops dispatch for the subscription and resets its handlers
// on their queue. Notifications already delivered stay delivered.
func (u *MarketDataUseCase) Unsubscribe(id uuid.UUID) error {
	u.mu.Lock()
	s, ok := u.subs[id]
	delete(u.subs, id)
	u.mu.Unlock()
	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}

	s.stopped.Store(true)
	s.stream.Unsubscribe()
	<-s.done

	for _, h := range s.handlers {
		if _, ok := h.(*listener.OrderbookMaintainer); ok {
			u.storage.Remove(s.Key)
			u.metrics.BookClosed()
		}
	}

	s.queue.Enqueue(func() {
		for _, h := range s.handlers {
			if r, ok := h.(resetter); ok {
				r.Reset()
			}
		}
	})

	u.logger.Info("unsubscribed", "key", s.Key.String(), "subscription", id)
	return nil
}

// Close unsubscribes everything.
func (u *MarketDataUseCase) Close() {
	u.mu.Lock()
	ids := make([]uuid.UUID, 0, len(u.subs))
	for id := range u.subs {
		ids = append(ids, id)
	}
	u.mu.Unlock()

	for _, id := range ids {
		if err := u.Unsubscribe(id); err != nil {
			u.logger.Warn("unsubscribe_failed", "subscription", id, "error", err)
		}
	}
}

func (u *MarketDataUseCase) Subscriptions() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.subs)
}

// OpenBooks counts the maintained books indexed for source.
func (u *MarketDataUseCase) OpenBooks(source string) int {
	if n := u.storage.OrderBookCount(source); n > 0 {
		return n
	}
	return 0
}

// GetOrderBookSnapshot returns up to limit levels per side of the live book.
// Without a live book it falls back to asking the source for a snapshot
// when the source can answer one.
func (u *MarketDataUseCase) GetOrderBookSnapshot(ctx context.Context, key *domain.SubscriptionKey, limit int) (*domain.BookSnapshot, error) {
	book, err := u.storage.Get(key)
	if err == nil {
		return book.TakeSnapshot(limit), nil
	}

	src, srcErr := u.source(key.Source)
	if srcErr != nil {
		return nil, err
	}
	snapshots, ok := src.(provider.SnapshotSource)
	if !ok {
		return nil, err
	}

	msg, err := snapshots.RequestSnapshot(ctx, key.Symbol)
	if err != nil {
		return nil, err
	}
	tmp := domain.NewOrderBook(key.Symbol)
	if err := tmp.Rebuild(msg.SeqNum(), msg.Time(), msg.Levels()); err != nil {
		return nil, err
	}
	return tmp.TakeSnapshot(limit), nil
}
