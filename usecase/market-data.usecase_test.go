package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/go-marketdata-checker/dispatch"
	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/spooky-finn/go-marketdata-checker/listener"
	"github.com/spooky-finn/go-marketdata-checker/provider/memory"
)

type seqRecorder struct {
	mu   sync.Mutex
	seqs []uint64
}

func (r *seqRecorder) HandleMessage(msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, msg.SeqNum())
}

func (r *seqRecorder) got() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seqs...)
}

type gapRecorder struct {
	mu   sync.Mutex
	gaps []string
}

func (r *gapRecorder) add(kind string, gap domain.Gap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gaps = append(r.gaps, fmt.Sprintf("%s:%d-%d", kind, gap.From, gap.To))
}

func (r *gapRecorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.gaps...)
}

func (r *gapRecorder) OnQuoteGap(_ listener.SubscriptionContext, _ domain.Message, gap domain.Gap, _ *listener.QuoteRecap) {
	r.add("quote", gap)
}

func (r *gapRecorder) OnTradeGap(_ listener.SubscriptionContext, _ domain.Message, gap domain.Gap, _ *listener.TradeRecap) {
	r.add("trade", gap)
}

func (r *gapRecorder) OnSecStatusGap(_ listener.SubscriptionContext, _ domain.Message, gap domain.Gap, _ *listener.SecStatusRecap) {
	r.add("secstatus", gap)
}

func (r *gapRecorder) OnBookGap(_ listener.SubscriptionContext, _ domain.Message, gap domain.Gap) {
	r.add("book", gap)
}

func newUseCase(t *testing.T) (*MarketDataUseCase, *memory.Source) {
	t.Helper()
	group, err := dispatch.NewQueueGroup(2)
	require.NoError(t, err)
	t.Cleanup(group.Stop)

	src := memory.NewSource(16)
	t.Cleanup(src.Close)

	u := NewMarketDataUseCase(group, nil, nil)
	u.RegisterSource("memory", src)
	return u, src
}

func TestMarketDataUseCase_IndependentConsumers(t *testing.T) {
	u, src := newUseCase(t)

	a, b := &seqRecorder{}, &seqRecorder{}
	subA, err := u.Subscribe(testContext(), a)
	require.NoError(t, err)
	subB, err := u.Subscribe(testContext(), b)
	require.NoError(t, err)
	assert.NotEqual(t, subA.QueueID(), subB.QueueID())
	assert.Equal(t, 2, u.Subscriptions())

	for seq := uint64(1); seq <= 3; seq++ {
		assert.Equal(t, 2, src.Publish(domain.NewRawMessage(domain.MsgUpdate, testSymbol, seq)))
	}

	want := []uint64{1, 2, 3}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, a.got()) && assert.ObjectsAreEqual(want, b.got())
	}, time.Second, time.Millisecond)

	require.NoError(t, u.Unsubscribe(subA.Context.ID))
	assert.Equal(t, 1, src.Publish(domain.NewRawMessage(domain.MsgUpdate, testSymbol, 4)))
	require.Eventually(t, func() bool { return len(b.got()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, want, a.got())
}

func TestMarketDataUseCase_OrderBookLifecycle(t *testing.T) {
	u, src := newUseCase(t)

	m := newMaintainer(t)
	ctx := testContext()
	sub, err := u.Subscribe(ctx, m)
	require.NoError(t, err)

	src.Publish(bookMsg(domain.MsgBookRecap, 1,
		level(domain.SideBid, "10", "1"),
		level(domain.SideBid, "9", "2"),
		level(domain.SideAsk, "11", "3"),
	))
	require.Eventually(t, m.Synced, time.Second, time.Millisecond)
	assert.Equal(t, 1, u.OpenBooks("memory"))
	assert.Equal(t, 0, u.OpenBooks("ws"))

	key := sub.Key
	snap, err := u.GetOrderBookSnapshot(context.Background(), key, 1)
	require.NoError(t, err)
	assert.Len(t, snap.Bids, 1)
	assert.Equal(t, "10", snap.Bids[0].Price.String())

	require.NoError(t, u.Unsubscribe(ctx.ID))
	assert.Equal(t, 0, u.OpenBooks("memory"))
	require.Eventually(t, func() bool { return !m.Synced() }, time.Second, time.Millisecond)
	assert.Equal(t, 0, m.Book().Depth(domain.SideBid))

	src.SetSnapshot(bookMsg(domain.MsgBookSnapshot, 9, level(domain.SideAsk, "12", "4")))
	snap, err = u.GetOrderBookSnapshot(context.Background(), key, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), snap.SeqNum)
	assert.Len(t, snap.Asks, 1)
}

func TestMarketDataUseCase_Errors(t *testing.T) {
	u, _ := newUseCase(t)
	rec := &seqRecorder{}

	_, err := u.Subscribe(listener.NewSubscriptionContext(&domain.SubscriptionKey{Source: "nope", Symbol: "X"}, ""), rec)
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)

	_, err = u.Subscribe(testContext())
	assert.Error(t, err)

	ctx := testContext()
	_, err = u.Subscribe(ctx, rec)
	require.NoError(t, err)
	_, err = u.Subscribe(ctx, rec)
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	assert.Error(t, u.Unsubscribe(testContext().ID))

	u.Close()
	assert.Equal(t, 0, u.Subscriptions())

	missing := &domain.SubscriptionKey{Source: "nope", Symbol: "X"}
	_, err = u.GetOrderBookSnapshot(context.Background(), missing, 0)
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestMarketDataUseCase_MixedFeedOnOneSubscription(t *testing.T) {
	u, src := newUseCase(t)
	ctx := testContext()

	quotes, err := listener.NewQuoteListener(ctx, listener.Options{})
	require.NoError(t, err)
	trades, err := listener.NewTradeListener(ctx, listener.Options{})
	require.NoError(t, err)
	status, err := listener.NewSecStatusListener(ctx, listener.Options{})
	require.NoError(t, err)
	book := newMaintainer(t)

	gaps := &gapRecorder{}
	for _, l := range []interface{ AddHandler(any) error }{quotes, trades, status, book} {
		require.NoError(t, l.AddHandler(gaps))
	}

	_, err = u.Subscribe(ctx, quotes, trades, status, book)
	require.NoError(t, err)

	feed := []domain.Message{
		domain.NewRawMessage(domain.MsgRecap, testSymbol, 1).Set(domain.FieldBidPrice, domain.PriceValue("10")),
		bookMsg(domain.MsgBookRecap, 2, level(domain.SideBid, "10", "1"), level(domain.SideAsk, "11", "1")),
		domain.NewRawMessage(domain.MsgQuote, testSymbol, 3).Set(domain.FieldBidPrice, domain.PriceValue("10.5")),
		bookMsg(domain.MsgBookUpdate, 4, level(domain.SideBid, "10.5", "2")),
		domain.NewRawMessage(domain.MsgTrade, testSymbol, 5).Set(domain.FieldTradePrice, domain.PriceValue("10.5")),
		domain.NewRawMessage(domain.MsgQuote, testSymbol, 6).Set(domain.FieldAskPrice, domain.PriceValue("11")),
		bookMsg(domain.MsgBookUpdate, 7, level(domain.SideAsk, "10.9", "3")),
	}
	for _, msg := range feed {
		require.Equal(t, 1, src.Publish(msg))
	}

	require.Eventually(t, func() bool { return book.Book().SeqNum() == 7 }, time.Second, time.Millisecond)
	assert.True(t, book.Synced())
	assert.Empty(t, gaps.got())

	src.SetSnapshot(bookMsg(domain.MsgBookSnapshot, 7,
		level(domain.SideBid, "10.5", "2"),
		level(domain.SideBid, "10", "1"),
		level(domain.SideAsk, "10.9", "3"),
		level(domain.SideAsk, "11", "1"),
	))
	c, err := NewOrderBookChecker(book, src, checkerConfig())
	require.NoError(t, err)

	res := c.CheckNow(context.Background())
	assert.Equal(t, CheckSuccess, res.Outcome, res.Reason)
}
