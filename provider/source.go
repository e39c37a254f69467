package provider

import (
	"context"

	"github.com/spooky-finn/go-marketdata-checker/domain"
)

// Source delivers decoded messages for a symbol. Every Subscribe call gets
// its own stream carrying every message, so independent consumers of one
// symbol never steal from each other.
type Source interface {
	Subscribe(symbol string) (*domain.Subscription[domain.Message], error)
}

// SnapshotSource answers one-shot full book requests. Implementations must
// give up when ctx is done.
type SnapshotSource interface {
	RequestSnapshot(ctx context.Context, symbol string) (domain.Message, error)
}
