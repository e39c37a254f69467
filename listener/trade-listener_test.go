package listener

import (
	"testing"

	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tradeRecorder struct {
	recaps      []*TradeRecap
	updates     []*TradeUpdate
	gaps        []domain.Gap
	dups        []uint64
	cancels     []*TradeCancel
	corrections []*TradeCorrection
	closings    []*TradeRecap
}

func (r *tradeRecorder) OnTradeRecap(_ SubscriptionContext, _ domain.Message, recap *TradeRecap) {
	r.recaps = append(r.recaps, recap)
}

func (r *tradeRecorder) OnTradeUpdate(_ SubscriptionContext, _ domain.Message, update *TradeUpdate) {
	r.updates = append(r.updates, update)
}

func (r *tradeRecorder) OnTradeGap(_ SubscriptionContext, _ domain.Message, gap domain.Gap, _ *TradeRecap) {
	r.gaps = append(r.gaps, gap)
}

func (r *tradeRecorder) OnTradeDuplicate(_ SubscriptionContext, _ domain.Message, cursor uint64) {
	r.dups = append(r.dups, cursor)
}

func (r *tradeRecorder) OnTradeCancel(_ SubscriptionContext, _ domain.Message, cancel *TradeCancel) {
	r.cancels = append(r.cancels, cancel)
}

func (r *tradeRecorder) OnTradeCorrection(_ SubscriptionContext, _ domain.Message, corr *TradeCorrection) {
	r.corrections = append(r.corrections, corr)
}

func (r *tradeRecorder) OnTradeClosing(_ SubscriptionContext, _ domain.Message, recap *TradeRecap) {
	r.closings = append(r.closings, recap)
}

func newTradeListener(t *testing.T) (*TradeListener, *tradeRecorder) {
	t.Helper()
	l, err := NewTradeListener(testContext(), Options{})
	require.NoError(t, err)
	rec := &tradeRecorder{}
	require.NoError(t, l.AddHandler(rec))
	return l, rec
}

func trade(seq uint64, price, size string) *domain.RawMessage {
	return newMsg(domain.MsgTrade, seq).
		Set(domain.FieldTradePrice, px(price)).
		Set(domain.FieldTradeSize, px(size))
}

func TestTradeListener_AccumulatesSession(t *testing.T) {
	l, rec := newTradeListener(t)

	l.HandleMessage(newMsg(domain.MsgRecap, 1))
	l.HandleMessage(trade(2, "100", "2"))
	l.HandleMessage(trade(3, "105", "1"))
	l.HandleMessage(trade(4, "98", "3"))

	require.Len(t, rec.updates, 3)
	last := rec.updates[2].Trade
	assert.Equal(t, "98", last.LastPrice.String())
	assert.Equal(t, "6", last.TotalVolume.String())
	assert.Equal(t, int64(3), last.TradeCount)
	assert.Equal(t, "100", last.Open.String())
	assert.Equal(t, "105", last.High.String())
	assert.Equal(t, "98", last.Low.String())

	assert.True(t, rec.updates[2].IsModified(domain.FieldLowPrice))
	assert.False(t, rec.updates[2].IsModified(domain.FieldHighPrice))
	assert.Equal(t, domain.FieldNotModified, l.FieldState(domain.FieldOpenPrice))
}

func TestTradeListener_FeedAggregatesWin(t *testing.T) {
	l, rec := newTradeListener(t)

	l.HandleMessage(newMsg(domain.MsgRecap, 1).
		Set(domain.FieldTotalVolume, px("1000")).
		Set(domain.FieldTradeCount, domain.IntValue(40)))
	l.HandleMessage(trade(2, "10", "5").Set(domain.FieldTotalVolume, px("1010")))

	require.Len(t, rec.updates, 1)
	assert.Equal(t, "1010", rec.updates[0].Trade.TotalVolume.String())
	assert.Equal(t, int64(41), rec.updates[0].Trade.TradeCount)
	assert.Equal(t, "1000", rec.recaps[0].TotalVolume.String())
}

func TestTradeListener_CancelAndCorrection(t *testing.T) {
	l, rec := newTradeListener(t)

	l.HandleMessage(newMsg(domain.MsgRecap, 1))
	l.HandleMessage(trade(2, "10", "5").Set(domain.FieldTradeID, domain.StringValue("t1")))
	l.HandleMessage(trade(3, "11", "4").Set(domain.FieldTradeID, domain.StringValue("t2")))

	l.HandleMessage(newMsg(domain.MsgCancel, 4).
		Set(domain.FieldOrigSeqNum, domain.IntValue(2)).
		Set(domain.FieldTradeID, domain.StringValue("t1")).
		Set(domain.FieldTradePrice, px("10")).
		Set(domain.FieldTradeSize, px("5")))

	require.Len(t, rec.cancels, 1)
	assert.Equal(t, uint64(2), rec.cancels[0].OrigSeqNum)
	assert.Equal(t, "t1", rec.cancels[0].ID)
	assert.Equal(t, "4", l.Trade().TotalVolume.String())
	assert.Equal(t, int64(1), l.Trade().TradeCount)
	assert.Equal(t, "11", l.Trade().LastPrice.String(), "cancel does not replace the last trade")

	l.HandleMessage(newMsg(domain.MsgCorrection, 5).
		Set(domain.FieldOrigSeqNum, domain.IntValue(3)).
		Set(domain.FieldTradeSize, px("4")).
		Set(domain.FieldCorrPrice, px("11")).
		Set(domain.FieldCorrSize, px("6")))

	require.Len(t, rec.corrections, 1)
	assert.Equal(t, "6", rec.corrections[0].Size.String())
	assert.Equal(t, "6", l.Trade().TotalVolume.String())
	assert.Len(t, rec.updates, 2)
}

func TestTradeListener_SequencingAndClosing(t *testing.T) {
	l, rec := newTradeListener(t)

	l.HandleMessage(newMsg(domain.MsgRecap, 10))
	l.HandleMessage(trade(10, "1", "1"))
	l.HandleMessage(trade(13, "1", "1"))
	l.HandleMessage(newMsg(domain.MsgClosing, 14).Set(domain.FieldClosePrice, px("1.25")))

	assert.Equal(t, []uint64{10}, rec.dups)
	assert.Equal(t, []domain.Gap{{From: 11, To: 12}}, rec.gaps)
	require.Len(t, rec.closings, 1)
	assert.Equal(t, "1.25", rec.closings[0].Close.String())
}
