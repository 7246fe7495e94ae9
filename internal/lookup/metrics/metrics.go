package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the lookup module. All helpers are
// nil-safe so tests can pass a nil receiver.
type Metrics struct {
	// Cache hits and misses by namespace
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// External provider call outcomes
	ProviderCalls *prometheus.CounterVec

	// Resolution outcomes by terminal state
	ResolveOutcomes *prometheus.CounterVec

	// Full resolution latency
	ResolveDuration prometheus.Histogram

	// Persistence failures surfaced after retries
	PersistFailures prometheus.Counter
}

// New creates and registers all lookup metrics.
func New() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ipwatch_cache_hits_total",
			Help: "Cache hits by namespace",
		}, []string{"namespace"}),

		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ipwatch_cache_misses_total",
			Help: "Cache misses by namespace",
		}, []string{"namespace"}),

		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ipwatch_provider_calls_total",
			Help: "External provider calls by outcome",
		}, []string{"outcome"}), // outcome: "ok", "timeout", "outage", "bad_data", "rejected"

		ResolveOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ipwatch_resolve_outcomes_total",
			Help: "Resolutions by terminal state",
		}, []string{"status"}), // status: "resolved", "rejected", "failed"

		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ipwatch_resolve_duration_seconds",
			Help:    "Duration of full resolutions including external fetches",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ipwatch_persist_failures_total",
			Help: "Upserts that failed after exhausting conflict retries",
		}),
	}
}

// RecordCacheHit counts one cache hit for a namespace.
func (m *Metrics) RecordCacheHit(namespace string) {
	if m != nil {
		m.CacheHits.WithLabelValues(namespace).Inc()
	}
}

// RecordCacheMiss counts one cache miss for a namespace.
func (m *Metrics) RecordCacheMiss(namespace string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(namespace).Inc()
	}
}

// RecordProviderCall counts one external call by outcome.
func (m *Metrics) RecordProviderCall(outcome string) {
	if m != nil {
		m.ProviderCalls.WithLabelValues(outcome).Inc()
	}
}

// RecordOutcome counts one resolution terminal state.
func (m *Metrics) RecordOutcome(status string) {
	if m != nil {
		m.ResolveOutcomes.WithLabelValues(status).Inc()
	}
}

// ObserveResolveDuration records the duration of one resolution.
func (m *Metrics) ObserveResolveDuration(d time.Duration) {
	if m != nil {
		m.ResolveDuration.Observe(d.Seconds())
	}
}

// RecordPersistFailure counts one exhausted or aborted durable write.
func (m *Metrics) RecordPersistFailure() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}
