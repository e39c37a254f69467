package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/spooky-finn/go-marketdata-checker/helpers"
	promclient "github.com/spooky-finn/go-marketdata-checker/infrastructure/prometheus"
	"github.com/spooky-finn/go-marketdata-checker/provider"
)

const (
	maxLoggedDiffs = 10
	catchUpPoll    = 2 * time.Millisecond
)

type CheckOutcome uint8

const (
	CheckSuccess CheckOutcome = iota
	CheckInconclusive
	CheckFailure
)

func (o CheckOutcome) String() string {
	switch o {
	case CheckInconclusive:
		return "inconclusive"
	case CheckFailure:
		return "failure"
	}
	return "success"
}

// CheckResult describes one comparison. Live and Snapshot are set whenever
// both books were obtained; Diffs only on failure.
type CheckResult struct {
	ID      uuid.UUID
	Symbol  string
	Outcome CheckOutcome
	Reason  string
	Started time.Time
	Took    time.Duration

	Live     *domain.BookSnapshot
	Snapshot *domain.BookSnapshot
	Diffs    []domain.BookDiff
}

type CheckHandler interface {
	OnSuccess(res *CheckResult)
	OnInconclusive(res *CheckResult)
	OnFailure(res *CheckResult)
}

// LiveBook is the maintained book under verification.
type LiveBook interface {
	Book() *domain.OrderBook
	Synced() bool
}

type CheckerConfig struct {
	Interval time.Duration
	// Timeout bounds the wait for the snapshot and for the live book to
	// reach its sequence number.
	Timeout time.Duration
	// CompareEntries also compares the individual entries of every level.
	CompareEntries bool
	Logger         *slog.Logger
	Metrics        *promclient.Metrics
}

type CheckStats struct {
	Success      uint64
	Inconclusive uint64
	Failure      uint64
}

// OrderBookChecker periodically compares a live book with an independently
// requested snapshot. It only reads the live book.
type OrderBookChecker struct {
	live     LiveBook
	source   provider.SnapshotSource
	cfg      CheckerConfig
	handlers []CheckHandler
	logger   *slog.Logger

	success      atomic.Uint64
	inconclusive atomic.Uint64
	failure      atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrderBookChecker(live LiveBook, source provider.SnapshotSource, cfg CheckerConfig, handlers ...CheckHandler) (*OrderBookChecker, error) {
	switch {
	case live == nil || live.Book() == nil:
		return nil, &domain.ConfigError{Field: "live_book", Err: errors.New("a maintained book is required")}
	case source == nil:
		return nil, &domain.ConfigError{Field: "snapshot_source", Err: errors.New("a snapshot source is required")}
	case cfg.Interval <= 0:
		return nil, &domain.ConfigError{Field: "check_interval", Err: fmt.Errorf("must be positive, got %s", cfg.Interval)}
	case cfg.Timeout <= 0:
		return nil, &domain.ConfigError{Field: "check_timeout", Err: fmt.Errorf("must be positive, got %s", cfg.Timeout)}
	case cfg.CompareEntries && !live.Book().TrackEntries():
		return nil, &domain.ConfigError{Field: "check_entries", Err: errors.New("live book does not track entries")}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OrderBookChecker{
		live:     live,
		source:   source,
		cfg:      cfg,
		handlers: handlers,
		logger:   logger.With("component", "orderbook-checker", "symbol", live.Book().Symbol),
	}, nil
}

// Start runs a check every interval on its own goroutine until ctx is done
// or Stop is called.
func (c *OrderBookChecker) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CheckNow(ctx)
			}
		}
	}()
}

// Stop cancels a running check and waits for the loop to exit.
func (c *OrderBookChecker) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *OrderBookChecker) Stats() CheckStats {
	return CheckStats{
		Success:      c.success.Load(),
		Inconclusive: c.inconclusive.Load(),
		Failure:      c.failure.Load(),
	}
}

// CheckNow runs one comparison, notifies the handlers and returns the result.
func (c *OrderBookChecker) CheckNow(ctx context.Context) *CheckResult {
	res := c.check(ctx)
	res.Took = time.Since(res.Started)
	c.report(res)
	return res
}

func (c *OrderBookChecker) check(ctx context.Context) *CheckResult {
	book := c.live.Book()
	res := &CheckResult{
		ID:      uuid.New(),
		Symbol:  book.Symbol,
		Started: time.Now(),
	}

	if !c.live.Synced() {
		return inconclusive(res, "live book not synced")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	msg, err := c.source.RequestSnapshot(reqCtx, book.Symbol)
	if err != nil {
		return inconclusive(res, fmt.Sprintf("snapshot request: %v", err))
	}

	var opts []domain.BookOption
	if book.TrackEntries() {
		opts = append(opts, domain.WithEntryTracking())
	}
	checkBook := domain.NewOrderBook(book.Symbol, opts...)
	if err := checkBook.Rebuild(msg.SeqNum(), msg.Time(), msg.Levels()); err != nil {
		return inconclusive(res, fmt.Sprintf("snapshot unusable: %v", err))
	}
	res.Snapshot = checkBook.TakeSnapshot(0)

	var reason string
	res.Live, reason = c.catchUp(reqCtx, book, res.Snapshot.SeqNum)
	if reason != "" {
		return inconclusive(res, reason)
	}

	diffs := domain.CompareBooks(res.Live, res.Snapshot, c.cfg.CompareEntries)

	if book.Generation() != res.Live.Generation {
		return inconclusive(res, "live book changed during comparison")
	}
	if len(diffs) > 0 {
		res.Outcome = CheckFailure
		res.Reason = diffs[0].String()
		res.Diffs = diffs
		return res
	}

	res.Outcome = CheckSuccess
	return res
}

// catchUp waits, within the snapshot deadline, for the live book to apply
// everything up to seq. Snapshot responses overtake queued stream messages,
// so the live book usually trails by a few updates.
func (c *OrderBookChecker) catchUp(ctx context.Context, book *domain.OrderBook, seq uint64) (*domain.BookSnapshot, string) {
	ticker := time.NewTicker(catchUpPoll)
	defer ticker.Stop()

	for {
		if !c.live.Synced() {
			return nil, "live book not synced"
		}
		live := book.SeqNum()
		if live == seq {
			snap := book.TakeSnapshot(0)
			if snap.SeqNum == seq {
				return snap, ""
			}
			live = snap.SeqNum
		}
		if live > seq {
			return book.TakeSnapshot(0), fmt.Sprintf("sequence mismatch: live %d passed snapshot %d", live, seq)
		}

		select {
		case <-ctx.Done():
			return book.TakeSnapshot(0), fmt.Sprintf("sequence mismatch: live %d behind snapshot %d: %v", live, seq, ctx.Err())
		case <-ticker.C:
		}
	}
}

func inconclusive(res *CheckResult, reason string) *CheckResult {
	res.Outcome = CheckInconclusive
	res.Reason = reason
	return res
}

func (c *OrderBookChecker) report(res *CheckResult) {
	c.cfg.Metrics.CheckResult(res.Symbol, res.Outcome.String(), res.Took)

	switch res.Outcome {
	case CheckSuccess:
		c.success.Add(1)
		c.logger.Debug("check_success", "check", res.ID, "seq", res.Live.SeqNum, "took", res.Took)
		for _, h := range c.handlers {
			h.OnSuccess(res)
		}
	case CheckInconclusive:
		c.inconclusive.Add(1)
		c.logger.Info("check_inconclusive", "check", res.ID, "reason", res.Reason)
		for _, h := range c.handlers {
			h.OnInconclusive(res)
		}
	case CheckFailure:
		c.failure.Add(1)
		logged := res.Diffs
		if len(logged) > maxLoggedDiffs {
			logged = logged[:maxLoggedDiffs]
		}
		c.logger.Error("check_failure",
			"check", res.ID,
			"seq", res.Live.SeqNum,
			"diff_count", len(res.Diffs),
			"diffs", helpers.ToJsonString(logged),
		)
		for _, h := range c.handlers {
			h.OnFailure(res)
		}
	}
}
