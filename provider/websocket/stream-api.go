package websocket

import (
	"log/slog"
	"sync"

	"github.com/spooky-finn/go-marketdata-checker/domain"
)

// StreamAPI decodes topic streams into messages. A symbol's topic is the
// symbol itself.
type StreamAPI struct {
	client *StreamClient
	dict   *domain.Dictionary
	logger *slog.Logger
}

func NewStreamAPI(client *StreamClient, dict *domain.Dictionary, logger *slog.Logger) *StreamAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamAPI{
		client: client,
		dict:   dict,
		logger: logger.With("component", "stream-api"),
	}
}

func (a *StreamAPI) Subscribe(symbol string) (*domain.Subscription[domain.Message], error) {
	raw, err := a.client.Subscribe(symbol)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Message)
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			raw.Unsubscribe()
		})
	}

	go func() {
		defer close(out)

		for data := range raw.Stream {
			msg, err := DecodeMessage(a.dict, data)
			if err != nil {
				a.logger.Warn("decode_failed", "symbol", symbol, "error", err)
				continue
			}
			select {
			case out <- msg:
			case <-done:
				return
			}
		}
	}()

	return &domain.Subscription[domain.Message]{
		Stream:      out,
		Unsubscribe: unsubscribe,
		Topic:       symbol,
	}, nil
}
