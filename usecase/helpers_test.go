package usecase

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/spooky-finn/go-marketdata-checker/listener"
)

const testSymbol = "BTC_USDT"

func testContext() listener.SubscriptionContext {
	return listener.NewSubscriptionContext(&domain.SubscriptionKey{Source: "memory", Symbol: testSymbol}, "usecase")
}

func level(side domain.Side, price, size string, entries ...domain.EntryAction) domain.LevelAction {
	return domain.LevelAction{
		Action:  domain.ActionAdd,
		Side:    side,
		Price:   decimal.RequireFromString(price),
		Size:    decimal.RequireFromString(size),
		Entries: entries,
	}
}

func entry(id, size string) domain.EntryAction {
	return domain.EntryAction{Action: domain.ActionAdd, ID: id, Size: decimal.RequireFromString(size)}
}

func bookMsg(typ domain.MsgType, seq uint64, levels ...domain.LevelAction) *domain.RawMessage {
	m := domain.NewRawMessage(typ, testSymbol, seq)
	for _, l := range levels {
		m.AddLevel(l)
	}
	return m
}

func newMaintainer(t *testing.T, bookOpts ...domain.BookOption) *listener.OrderbookMaintainer {
	t.Helper()
	m, err := listener.NewOrderBookMaintainer(testContext(), domain.NewOrderBook(testSymbol, bookOpts...), listener.Options{})
	require.NoError(t, err)
	return m
}

type checkRecorder struct {
	mu           sync.Mutex
	success      []*CheckResult
	inconclusive []*CheckResult
	failure      []*CheckResult
}

func (r *checkRecorder) OnSuccess(res *CheckResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success = append(r.success, res)
}

func (r *checkRecorder) OnInconclusive(res *CheckResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inconclusive = append(r.inconclusive, res)
}

func (r *checkRecorder) OnFailure(res *CheckResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = append(r.failure, res)
}
