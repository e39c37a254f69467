package promclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the listener and checker counters on a private registry.
// All methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	Messages      *prometheus.CounterVec
	Gaps          *prometheus.CounterVec
	GapSize       *prometheus.CounterVec
	Duplicates    *prometheus.CounterVec
	Unsynced      *prometheus.CounterVec
	BookErrors    *prometheus.CounterVec
	CheckResults  *prometheus.CounterVec
	CheckDuration prometheus.Histogram
	OpenBooks     prometheus.Gauge
	QueuePanics   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_messages_total",
			Help: "Messages processed per listener and sequence class.",
		}, []string{"listener", "class"}),
		Gaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_sequence_gaps_total",
			Help: "Sequence gaps detected per listener and symbol.",
		}, []string{"listener", "symbol"}),
		GapSize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_sequence_gap_messages_total",
			Help: "Messages lost to sequence gaps per listener and symbol.",
		}, []string{"listener", "symbol"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_duplicates_total",
			Help: "Duplicate or stale messages dropped per listener.",
		}, []string{"listener", "symbol"}),
		Unsynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_pre_recap_updates_total",
			Help: "Updates received before the first recap, by applied policy.",
		}, []string{"listener", "policy"}),
		BookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_book_errors_total",
			Help: "Structural order book errors per symbol.",
		}, []string{"symbol"}),
		CheckResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_book_checks_total",
			Help: "Order book consistency check outcomes per symbol.",
		}, []string{"symbol", "outcome"}),
		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "md_book_check_duration_seconds",
			Help:    "Time from snapshot request to verdict.",
			Buckets: prometheus.DefBuckets,
		}),
		OpenBooks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "md_open_order_books",
			Help: "Order books currently maintained.",
		}),
		QueuePanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "md_queue_panics_total",
			Help: "Handler panics recovered by dispatch queues.",
		}),
	}

	m.registry.MustRegister(
		m.Messages, m.Gaps, m.GapSize, m.Duplicates, m.Unsynced, m.BookErrors,
		m.CheckResults, m.CheckDuration, m.OpenBooks, m.QueuePanics,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Message(listener, class string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(listener, class).Inc()
}

func (m *Metrics) Gap(listener, symbol string, lost uint64) {
	if m == nil {
		return
	}
	m.Gaps.WithLabelValues(listener, symbol).Inc()
	m.GapSize.WithLabelValues(listener, symbol).Add(float64(lost))
}

func (m *Metrics) Duplicate(listener, symbol string) {
	if m == nil {
		return
	}
	m.Duplicates.WithLabelValues(listener, symbol).Inc()
}

func (m *Metrics) PreRecap(listener, policy string) {
	if m == nil {
		return
	}
	m.Unsynced.WithLabelValues(listener, policy).Inc()
}

func (m *Metrics) BookError(symbol string) {
	if m == nil {
		return
	}
	m.BookErrors.WithLabelValues(symbol).Inc()
}

func (m *Metrics) CheckResult(symbol, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.CheckResults.WithLabelValues(symbol, outcome).Inc()
	m.CheckDuration.Observe(took.Seconds())
}

func (m *Metrics) BookOpened() {
	if m == nil {
		return
	}
	m.OpenBooks.Inc()
}

func (m *Metrics) BookClosed() {
	if m == nil {
		return
	}
	m.OpenBooks.Dec()
}

func (m *Metrics) QueuePanic() {
	if m == nil {
		return
	}
	m.QueuePanics.Inc()
}

// WatchQueueDepth exports depth() as the number of tasks waiting in
// dispatch queues, sampled at scrape time.
func (m *Metrics) WatchQueueDepth(depth func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "md_queue_depth",
		Help: "Tasks waiting in dispatch queues.",
	}, func() float64 { return float64(depth()) }))
}

// StartPromClientServer serves /metrics on addr until the server fails.
func StartPromClientServer(addr string, m *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	slog.Info("metrics_server_listening", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
