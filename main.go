package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/spooky-finn/go-marketdata-checker/config"
	"github.com/spooky-finn/go-marketdata-checker/dispatch"
	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/spooky-finn/go-marketdata-checker/infrastructure/logger"
	promclient "github.com/spooky-finn/go-marketdata-checker/infrastructure/prometheus"
	redisclient "github.com/spooky-finn/go-marketdata-checker/infrastructure/redis"
	"github.com/spooky-finn/go-marketdata-checker/listener"
	"github.com/spooky-finn/go-marketdata-checker/provider"
	"github.com/spooky-finn/go-marketdata-checker/provider/websocket"
	"github.com/spooky-finn/go-marketdata-checker/rpc"
	"github.com/spooky-finn/go-marketdata-checker/usecase"
)

const shutdownTimeout = 10 * time.Second

type feed struct {
	source    provider.Source
	snapshots provider.SnapshotSource
	requester domain.RecapRequester
	close     func() error
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("dotenv_load_failed", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	config.DebugMode = cfg.Debug

	log := logger.NewLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("checker_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := promclient.NewMetrics()
	go func() {
		if err := promclient.StartPromClientServer(cfg.MetricsAddr, metrics); err != nil {
			log.Error("metrics_server_failed", "error", err)
		}
	}()

	group, err := dispatch.NewQueueGroup(cfg.QueueCount,
		dispatch.WithLogger(log),
		dispatch.WithPanicHook(func(int, any) { metrics.QueuePanic() }),
	)
	if err != nil {
		return err
	}
	defer group.Stop()
	metrics.WatchQueueDepth(group.Pending)

	keys, err := subscriptionKeys(cfg)
	if err != nil {
		return err
	}

	dict, err := domain.DefaultDictionary()
	if err != nil {
		return err
	}

	f, err := openFeed(ctx, cfg, dict, log)
	if err != nil {
		return err
	}
	defer f.close()

	marketData := usecase.NewMarketDataUseCase(group, log, metrics)
	marketData.RegisterSource(cfg.Source, f.source)
	defer marketData.Close()

	symbols := make([]string, len(keys))
	for i, key := range keys {
		symbols[i] = key.Symbol
	}
	rpcServer := rpc.NewServer(symbols, log)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}
	go func() {
		if err := rpcServer.Serve(lis); err != nil {
			log.Error("grpc_server_failed", "error", err)
		}
	}()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rpcServer.Stop(stopCtx)
	}()

	checkHandlers := []usecase.CheckHandler{rpcServer}
	if cfg.RedisURL != "" {
		publisher, err := redisclient.NewCheckPublisher(cfg.RedisURL, cfg.RedisTTL, log)
		if err != nil {
			log.Warn("redis_unavailable", "error", err)
		} else {
			defer publisher.Close()
			checkHandlers = append(checkHandlers, publisher)
		}
	}

	policy, err := listener.ParsePreRecapPolicy(cfg.PreRecapPolicy)
	if err != nil {
		return err
	}
	opts := listener.Options{
		PreRecap:    policy,
		MaxBuffered: cfg.MaxBuffered,
		RecapOnGap:  cfg.RecapOnGap,
		Requester:   f.requester,
		Logger:      log,
		Metrics:     metrics,
	}

	notifications := newLogHandlers(log)
	for _, key := range keys {
		checker, err := subscribeSymbol(cfg, marketData, f, opts, notifications, checkHandlers, key)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", key, err)
		}
		checker.Start(ctx)
		defer checker.Stop()
	}

	log.Info("checker_running",
		"symbols", symbols,
		"source", cfg.Source,
		"books", marketData.OpenBooks(cfg.Source),
		"queues", group.Len(),
	)
	<-ctx.Done()
	log.Info("shutting_down")
	return nil
}

// subscriptionKeys resolves the configured symbols against the single feed
// this process opens.
func subscriptionKeys(cfg *config.Config) ([]*domain.SubscriptionKey, error) {
	keys, err := domain.ParseSubscriptionKeys(cfg.Source, cfg.Symbols)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if key.Source != cfg.Source {
			return nil, fmt.Errorf("symbol %s: source %q is not the configured feed %q", key, key.Source, cfg.Source)
		}
	}
	return keys, nil
}

func openFeed(ctx context.Context, cfg *config.Config, dict *domain.Dictionary, log *slog.Logger) (*feed, error) {
	client := websocket.NewStreamClient(cfg.FeedURL, log)
	dialCtx, cancel := context.WithTimeout(ctx, cfg.CheckTimeout)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		return nil, err
	}
	syncAPI := websocket.NewSyncAPI(client, dict)
	return &feed{
		source:    websocket.NewStreamAPI(client, dict, log),
		snapshots: syncAPI,
		requester: syncAPI,
		close:     client.Close,
	}, nil
}

// subscribeSymbol binds every listener of one symbol to a single queue and
// starts verifying its book.
func subscribeSymbol(
	cfg *config.Config,
	marketData *usecase.MarketDataUseCase,
	f *feed,
	opts listener.Options,
	notifications *logHandlers,
	checkHandlers []usecase.CheckHandler,
	key *domain.SubscriptionKey,
) (*usecase.OrderBookChecker, error) {
	ctx := listener.NewSubscriptionContext(key, "")

	quotes, err := listener.NewQuoteListener(ctx, opts)
	if err != nil {
		return nil, err
	}
	trades, err := listener.NewTradeListener(ctx, opts)
	if err != nil {
		return nil, err
	}
	status, err := listener.NewSecStatusListener(ctx, opts)
	if err != nil {
		return nil, err
	}

	var bookOpts []domain.BookOption
	if cfg.EntryTracking {
		bookOpts = append(bookOpts, domain.WithEntryTracking())
	}
	if cfg.CrossCheck {
		bookOpts = append(bookOpts, domain.WithCrossCheck())
	}
	book, err := listener.NewOrderBookMaintainer(ctx, domain.NewOrderBook(key.Symbol, bookOpts...), opts)
	if err != nil {
		return nil, err
	}

	for _, l := range []interface{ AddHandler(any) error }{quotes, trades, status, book} {
		if err := l.AddHandler(notifications); err != nil {
			return nil, err
		}
	}

	if _, err := marketData.Subscribe(ctx, quotes, trades, status, book); err != nil {
		return nil, err
	}

	return usecase.NewOrderBookChecker(book, f.snapshots, usecase.CheckerConfig{
		Interval:       cfg.CheckInterval,
		Timeout:        cfg.CheckTimeout,
		CompareEntries: cfg.CheckEntries,
		Logger:         opts.Logger,
		Metrics:        opts.Metrics,
	}, checkHandlers...)
}
