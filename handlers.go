package main

import (
	"log/slog"

	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/spooky-finn/go-marketdata-checker/listener"
)

// logHandlers reports listener notifications. Updates and deltas go to the
// debug level; everything that needs attention is logged at info or above.
type logHandlers struct {
	logger *slog.Logger
}

func newLogHandlers(logger *slog.Logger) *logHandlers {
	return &logHandlers{logger: logger.With("component", "notifications")}
}

func (h *logHandlers) OnQuality(ctx listener.SubscriptionContext, msg domain.Message, status domain.MsgStatus) {
	h.logger.Warn("quality_changed", "symbol", ctx.Symbol, "seq", msg.SeqNum(), "status", status.String())
}

func (h *logHandlers) OnQuoteRecap(ctx listener.SubscriptionContext, _ domain.Message, recap *listener.QuoteRecap) {
	h.logger.Info("quote_recap", "symbol", ctx.Symbol, "seq", recap.SeqNum,
		"bid", recap.BidPrice.String(), "ask", recap.AskPrice.String(), "mid", recap.MidPrice().String())
}

func (h *logHandlers) OnQuoteUpdate(ctx listener.SubscriptionContext, _ domain.Message, update *listener.QuoteUpdate) {
	h.logger.Debug("quote_update", "symbol", ctx.Symbol, "seq", update.SeqNum,
		"modified", len(update.Modified), "spread", update.Quote.Spread().String())
}

func (h *logHandlers) OnQuoteGap(ctx listener.SubscriptionContext, _ domain.Message, gap domain.Gap, _ *listener.QuoteRecap) {
	h.logger.Warn("quote_gap", "symbol", ctx.Symbol, "from", gap.From, "to", gap.To)
}

func (h *logHandlers) OnQuoteClosing(ctx listener.SubscriptionContext, _ domain.Message, recap *listener.QuoteRecap) {
	h.logger.Info("quote_closing", "symbol", ctx.Symbol, "bid", recap.BidPrice.String(), "ask", recap.AskPrice.String())
}

func (h *logHandlers) OnTradeRecap(ctx listener.SubscriptionContext, _ domain.Message, recap *listener.TradeRecap) {
	h.logger.Info("trade_recap", "symbol", ctx.Symbol, "seq", recap.SeqNum,
		"last", recap.LastPrice.String(), "volume", recap.TotalVolume.String())
}

func (h *logHandlers) OnTradeUpdate(ctx listener.SubscriptionContext, _ domain.Message, update *listener.TradeUpdate) {
	h.logger.Debug("trade_update", "symbol", ctx.Symbol, "seq", update.SeqNum,
		"price", update.Trade.LastPrice.String(), "size", update.Trade.LastSize.String())
}

func (h *logHandlers) OnTradeGap(ctx listener.SubscriptionContext, _ domain.Message, gap domain.Gap, _ *listener.TradeRecap) {
	h.logger.Warn("trade_gap", "symbol", ctx.Symbol, "from", gap.From, "to", gap.To)
}

func (h *logHandlers) OnTradeCancel(ctx listener.SubscriptionContext, _ domain.Message, cancel *listener.TradeCancel) {
	h.logger.Info("trade_cancel", "symbol", ctx.Symbol, "orig_seq", cancel.OrigSeqNum, "trade_id", cancel.ID)
}

func (h *logHandlers) OnTradeCorrection(ctx listener.SubscriptionContext, _ domain.Message, c *listener.TradeCorrection) {
	h.logger.Info("trade_correction", "symbol", ctx.Symbol, "orig_seq", c.OrigSeqNum, "trade_id", c.ID,
		"price", c.Price.String(), "size", c.Size.String())
}

func (h *logHandlers) OnTradeClosing(ctx listener.SubscriptionContext, _ domain.Message, recap *listener.TradeRecap) {
	h.logger.Info("trade_closing", "symbol", ctx.Symbol, "close", recap.Close.String())
}

func (h *logHandlers) OnSecStatusRecap(ctx listener.SubscriptionContext, _ domain.Message, recap *listener.SecStatusRecap) {
	h.logger.Info("sec_status_recap", "symbol", ctx.Symbol, "status", recap.Status.String(), "reason", recap.Reason)
}

func (h *logHandlers) OnSecStatusUpdate(ctx listener.SubscriptionContext, _ domain.Message, update *listener.SecStatusUpdate) {
	h.logger.Info("sec_status_update", "symbol", ctx.Symbol,
		"previous", update.Previous.String(), "status", update.Status.Status.String())
}

func (h *logHandlers) OnBookRecap(ctx listener.SubscriptionContext, _ domain.Message, book *domain.BookSnapshot) {
	h.logger.Info("book_recap", "symbol", ctx.Symbol, "seq", book.SeqNum, "bids", len(book.Bids), "asks", len(book.Asks))
}

func (h *logHandlers) OnBookClear(ctx listener.SubscriptionContext, msg domain.Message) {
	h.logger.Info("book_clear", "symbol", ctx.Symbol, "seq", msg.SeqNum())
}

func (h *logHandlers) OnBookGap(ctx listener.SubscriptionContext, _ domain.Message, gap domain.Gap) {
	h.logger.Warn("book_gap", "symbol", ctx.Symbol, "from", gap.From, "to", gap.To)
}

func (h *logHandlers) OnBookError(ctx listener.SubscriptionContext, _ domain.Message, err *domain.BookError) {
	h.logger.Error("book_error", "symbol", ctx.Symbol, "error", err)
}
