package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// Enabled turns collection on. When false all recorders are no-ops.
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric namespace prefix.
	Namespace string `yaml:"namespace"`
}

// Metrics provides Prometheus metrics for the installation engine.
type Metrics struct {
	config MetricsConfig

	txStarted   *prometheus.CounterVec
	txCompleted *prometheus.CounterVec
	txDuration  *prometheus.HistogramVec

	packsInstalled prometheus.Counter
	packsRemoved   prometheus.Counter
	rollbacks      prometheus.Counter

	gcRuns     *prometheus.CounterVec
	gcFailures prometheus.Counter

	fetchDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. With Enabled false it returns a
// no-op instance.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "packforge"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		txStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_started_total",
				Help:      "Total number of install transactions started",
			},
			[]string{"operation"},
		),
		txCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_completed_total",
				Help:      "Total number of install transactions completed",
			},
			[]string{"operation", "state"},
		),
		txDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Duration of install transactions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		packsInstalled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packs_installed_total",
				Help:      "Total number of pack payloads installed",
			},
		),
		packsRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packs_removed_total",
				Help:      "Total number of pack payloads removed by GC",
			},
		),
		rollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of transactions rolled back",
			},
		),
		gcRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gc_runs_total",
				Help:      "Total number of garbage collection runs",
			},
			[]string{"outcome"},
		),
		gcFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gc_pack_failures_total",
				Help:      "Total number of pack removals that failed during GC",
			},
		),
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of package fetches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.txStarted, m.txCompleted, m.txDuration,
		m.packsInstalled, m.packsRemoved, m.rollbacks,
		m.gcRuns, m.gcFailures, m.fetchDuration,
	)

	return m
}

// TxStarted records a started transaction.
func (m *Metrics) TxStarted(operation string) {
	if m.txStarted != nil {
		m.txStarted.WithLabelValues(operation).Inc()
	}
}

// TxCompleted records a finished transaction and its duration.
func (m *Metrics) TxCompleted(operation, state string, d time.Duration) {
	if m.txCompleted != nil {
		m.txCompleted.WithLabelValues(operation, state).Inc()
		m.txDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// PackInstalled records one installed pack payload.
func (m *Metrics) PackInstalled() {
	if m.packsInstalled != nil {
		m.packsInstalled.Inc()
	}
}

// PacksRemoved records packs removed by GC.
func (m *Metrics) PacksRemoved(n int) {
	if m.packsRemoved != nil {
		m.packsRemoved.Add(float64(n))
	}
}

// Rollback records one rolled-back transaction.
func (m *Metrics) Rollback() {
	if m.rollbacks != nil {
		m.rollbacks.Inc()
	}
}

// GCRun records one garbage collection run.
func (m *Metrics) GCRun(outcome string) {
	if m.gcRuns != nil {
		m.gcRuns.WithLabelValues(outcome).Inc()
	}
}

// GCFailures records pack removals that failed during GC.
func (m *Metrics) GCFailures(n int) {
	if m.gcFailures != nil {
		m.gcFailures.Add(float64(n))
	}
}

// FetchObserved records one package fetch duration.
func (m *Metrics) FetchObserved(d time.Duration) {
	if m.fetchDuration != nil {
		m.fetchDuration.Observe(d.Seconds())
	}
}

// Handler returns an HTTP handler exposing the metrics, or nil when metrics
// are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
