// Package redisclient stores the latest check result per symbol in redis.
package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/spooky-finn/go-marketdata-checker/usecase"
)

const writeTimeout = 2 * time.Second

type setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CheckRecord is what is stored under check:{symbol}.
type CheckRecord struct {
	ID          string            `json:"id"`
	Symbol      string            `json:"symbol"`
	Outcome     string            `json:"outcome"`
	Reason      string            `json:"reason,omitempty"`
	LiveSeq     uint64            `json:"liveSeq,omitempty"`
	SnapshotSeq uint64            `json:"snapshotSeq,omitempty"`
	Started     time.Time         `json:"started"`
	TookMs      int64             `json:"tookMs"`
	DiffCount   int               `json:"diffCount"`
	Diffs       []domain.BookDiff `json:"diffs,omitempty"`
}

func NewCheckRecord(res *usecase.CheckResult, maxDiffs int) CheckRecord {
	rec := CheckRecord{
		ID:        res.ID.String(),
		Symbol:    res.Symbol,
		Outcome:   res.Outcome.String(),
		Reason:    res.Reason,
		Started:   res.Started,
		TookMs:    res.Took.Milliseconds(),
		DiffCount: len(res.Diffs),
		Diffs:     res.Diffs,
	}
	if res.Live != nil {
		rec.LiveSeq = res.Live.SeqNum
	}
	if res.Snapshot != nil {
		rec.SnapshotSeq = res.Snapshot.SeqNum
	}
	if maxDiffs > 0 && len(rec.Diffs) > maxDiffs {
		rec.Diffs = rec.Diffs[:maxDiffs]
	}
	return rec
}

func CheckKey(symbol string) string {
	return fmt.Sprintf("check:%s", symbol)
}

// CheckPublisher is a checker handler writing every result with a TTL.
// Write errors are logged; the checker never waits longer than writeTimeout.
type CheckPublisher struct {
	client   setter
	closer   func() error
	ttl      time.Duration
	maxDiffs int
	logger   *slog.Logger
}

func NewCheckPublisher(redisURL string, ttl time.Duration, logger *slog.Logger) (*CheckPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	p := newCheckPublisher(client, ttl, logger)
	p.closer = client.Close
	return p, nil
}

func newCheckPublisher(client setter, ttl time.Duration, logger *slog.Logger) *CheckPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckPublisher{
		client:   client,
		ttl:      ttl,
		maxDiffs: 50,
		logger:   logger.With("component", "check-publisher"),
	}
}

func (p *CheckPublisher) OnSuccess(res *usecase.CheckResult)      { p.publish(res) }
func (p *CheckPublisher) OnInconclusive(res *usecase.CheckResult) { p.publish(res) }
func (p *CheckPublisher) OnFailure(res *usecase.CheckResult)      { p.publish(res) }

func (p *CheckPublisher) publish(res *usecase.CheckResult) {
	data, err := json.Marshal(NewCheckRecord(res, p.maxDiffs))
	if err != nil {
		p.logger.Error("encode_failed", "symbol", res.Symbol, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.client.Set(ctx, CheckKey(res.Symbol), data, p.ttl).Err(); err != nil {
		p.logger.Error("redis_set_failed", "symbol", res.Symbol, "error", err)
		return
	}
	p.logger.Debug("check_published", "symbol", res.Symbol, "outcome", res.Outcome.String())
}

func (p *CheckPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
