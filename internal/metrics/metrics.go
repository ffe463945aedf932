// Package metrics exposes ingestion and cache counters to Prometheus.
// Every method is safe on a nil *Metrics so components can run without
// observability wired in.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	linesTotal       *prometheus.CounterVec
	eventsEmitted    *prometheus.CounterVec
	storeErrors      *prometheus.CounterVec
	pendingSignals   prometheus.Gauge
	rotationsTotal   prometheus.Counter
	backfillFiles    prometheus.Counter
	backfillRuns     *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	cachePromotions  prometheus.Counter
	upstreamRequests *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
}

// New creates the collectors and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.init()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) init() {
	m.linesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edjournal_lines_total",
			Help: "Journal lines processed, by outcome",
		},
		[]string{"result"}, // applied, parse_error, empty, unknown
	)
	m.eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edjournal_events_emitted_total",
			Help: "Domain events emitted, by name",
		},
		[]string{"event"},
	)
	m.storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edjournal_store_errors_total",
			Help: "Store failures, by classification",
		},
		[]string{"kind"},
	)
	m.pendingSignals = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "edjournal_pending_signals",
		Help: "Signal reports waiting for their body to be scanned",
	})
	m.rotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edjournal_rotations_total",
		Help: "Journal file rotations observed",
	})
	m.backfillFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edjournal_backfill_files_total",
		Help: "Journal files replayed by backfill",
	})
	m.backfillRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edjournal_backfill_runs_total",
			Help: "Backfill runs, by outcome",
		},
		[]string{"result"}, // completed, cancelled, failed
	)
	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edjournal_cache_lookups_total",
			Help: "Upstream cache lookups, by tier that answered",
		},
		[]string{"kind", "tier"}, // tier: memory, persistent, network, failed
	)
	m.cachePromotions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edjournal_cache_promotions_total",
		Help: "Persistent cache entries promoted to memory",
	})
	m.upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edjournal_upstream_requests_total",
			Help: "Upstream HTTP requests, by status",
		},
		[]string{"status"},
	)
	m.upstreamDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "edjournal_upstream_request_duration_seconds",
		Help:    "Upstream HTTP request latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
}

// Registry returns the registry the collectors were registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.linesTotal.Describe(ch)
	m.eventsEmitted.Describe(ch)
	m.storeErrors.Describe(ch)
	m.pendingSignals.Describe(ch)
	m.rotationsTotal.Describe(ch)
	m.backfillFiles.Describe(ch)
	m.backfillRuns.Describe(ch)
	m.cacheLookups.Describe(ch)
	m.cachePromotions.Describe(ch)
	m.upstreamRequests.Describe(ch)
	m.upstreamDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.linesTotal.Collect(ch)
	m.eventsEmitted.Collect(ch)
	m.storeErrors.Collect(ch)
	m.pendingSignals.Collect(ch)
	m.rotationsTotal.Collect(ch)
	m.backfillFiles.Collect(ch)
	m.backfillRuns.Collect(ch)
	m.cacheLookups.Collect(ch)
	m.cachePromotions.Collect(ch)
	m.upstreamRequests.Collect(ch)
	m.upstreamDuration.Collect(ch)
}

// Line outcomes.
const (
	LineApplied    = "applied"
	LineParseError = "parse_error"
	LineEmpty      = "empty"
	LineUnknown    = "unknown"
)

func (m *Metrics) Line(result string) {
	if m == nil {
		return
	}
	m.linesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) EventEmitted(name string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(name).Inc()
}

func (m *Metrics) StoreError(kind string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetPendingSignals(n int) {
	if m == nil {
		return
	}
	m.pendingSignals.Set(float64(n))
}

func (m *Metrics) Rotation() {
	if m == nil {
		return
	}
	m.rotationsTotal.Inc()
}

func (m *Metrics) BackfillFile() {
	if m == nil {
		return
	}
	m.backfillFiles.Inc()
}

func (m *Metrics) BackfillRun(result string) {
	if m == nil {
		return
	}
	m.backfillRuns.WithLabelValues(result).Inc()
}

// Cache tiers.
const (
	TierMemory     = "memory"
	TierPersistent = "persistent"
	TierNetwork    = "network"
	TierFailed     = "failed"
)

func (m *Metrics) CacheLookup(kind, tier string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(kind, tier).Inc()
}

func (m *Metrics) CachePromotion() {
	if m == nil {
		return
	}
	m.cachePromotions.Inc()
}

func (m *Metrics) UpstreamRequest(status string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(status).Inc()
	m.upstreamDuration.Observe(seconds)
}
