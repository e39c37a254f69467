package websocket

import (
	"context"
	"fmt"

	"github.com/spooky-finn/go-marketdata-checker/domain"
)

const (
	methodSnapshot = "SNAPSHOT"
	methodRecap    = "RECAP"
)

// SyncAPI is the request/response side of the feed: one-shot book
// snapshots for the checker and recap requests for listeners.
type SyncAPI struct {
	client *StreamClient
	dict   *domain.Dictionary
}

func NewSyncAPI(client *StreamClient, dict *domain.Dictionary) *SyncAPI {
	return &SyncAPI{client: client, dict: dict}
}

func (api *SyncAPI) RequestSnapshot(ctx context.Context, symbol string) (domain.Message, error) {
	result, err := api.client.Request(ctx, methodSnapshot, symbol)
	if err != nil {
		return nil, err
	}

	msg, err := DecodeMessage(api.dict, result)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", symbol, err)
	}
	if !msg.Type().IsBook() || !msg.Type().IsRecap() {
		return nil, fmt.Errorf("snapshot %s: unexpected message type %s", symbol, msg.Type())
	}
	return msg, nil
}

// RequestRecap asks the feed to publish a recap on the symbol's stream.
func (api *SyncAPI) RequestRecap(symbol string) error {
	return api.client.Send(methodRecap, symbol)
}
