package listener

import (
	"github.com/spooky-finn/go-marketdata-checker/domain"
)

const testSymbol = "BTC_USDT"

func testContext() SubscriptionContext {
	return NewSubscriptionContext(&domain.SubscriptionKey{Source: "test", Symbol: testSymbol}, "unit")
}

func newMsg(typ domain.MsgType, seq uint64) *domain.RawMessage {
	return domain.NewRawMessage(typ, testSymbol, seq)
}

func px(s string) domain.FieldValue {
	return domain.PriceValue(s)
}

type fakeRequester struct {
	symbols []string
	err     error
}

func (f *fakeRequester) RequestRecap(symbol string) error {
	f.symbols = append(f.symbols, symbol)
	return f.err
}

// journal collects callbacks from several handlers in invocation order.
type journal struct {
	events []string
}

func (j *journal) add(e string) {
	j.events = append(j.events, e)
}
