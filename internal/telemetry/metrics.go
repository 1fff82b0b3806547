// Package telemetry holds the Prometheus metrics emitted by the pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the interception pipeline.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	RateLimitHits     *prometheus.CounterVec
	CacheEvents       *prometheus.CounterVec
	RetryAttempts     *prometheus.CounterVec
	Timeouts          *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg. Passing nil registers
// on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interlock_request_total",
			Help: "Total number of requests processed by the pipeline.",
		}, []string{"route", "method", "status"}),

		RequestDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interlock_request_duration_ms",
			Help:    "Endpoint invocation duration in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"route"}),

		RateLimitHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interlock_ratelimit_hits_total",
			Help: "Total requests rejected by the rate limiter.",
		}, []string{"route", "strategy"}),

		CacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interlock_cache_events_total",
			Help: "Cache engine events by kind (hit, miss, stale, revalidate, store, not_modified, invalidate).",
		}, []string{"route", "event"}),

		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interlock_retry_attempts_total",
			Help: "Retry attempts by outcome (success, retried, exhausted).",
		}, []string{"route", "outcome"}),

		Timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "interlock_timeouts_total",
			Help: "Invocations cancelled by the timeout stage.",
		}, []string{"route"}),
	}
}

// RecordRequest records the terminal status and duration for one invocation.
func (m *Metrics) RecordRequest(route, method, status string, durationMs float64) {
	m.RequestTotal.WithLabelValues(route, method, status).Inc()
	m.RequestDurationMs.WithLabelValues(route).Observe(durationMs)
}

// RecordRateLimitHit records a 429 rejection.
func (m *Metrics) RecordRateLimitHit(route, strategy string) {
	m.RateLimitHits.WithLabelValues(route, strategy).Inc()
}

// RecordCacheEvent records a cache engine event.
func (m *Metrics) RecordCacheEvent(route, event string) {
	m.CacheEvents.WithLabelValues(route, event).Inc()
}

// RecordRetry records a retry loop outcome.
func (m *Metrics) RecordRetry(route, outcome string) {
	m.RetryAttempts.WithLabelValues(route, outcome).Inc()
}

// RecordTimeout records a timeout cancellation.
func (m *Metrics) RecordTimeout(route string) {
	m.Timeouts.WithLabelValues(route).Inc()
}
