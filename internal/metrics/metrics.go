// Package metrics exposes token lifecycle counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "dbauth"

// Cache request results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// Issuance attempt results.
const (
	IssuanceSuccess   = "success"
	IssuanceRetryable = "retryable"
	IssuanceFatal     = "fatal"
)

// Fallback results.
const (
	FallbackUsed        = "used"
	FallbackUnavailable = "unavailable"
)

// Refresh results.
const (
	RefreshSuccess = "success"
	RefreshRetry   = "retry"
	RefreshRemoved = "removed"
)

// Metrics is a prometheus.Collector counting token lifecycle events. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	cacheRequests    *prometheus.CounterVec
	issuanceAttempts *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
}

// New returns a new Metrics collector.
func New() *Metrics {
	return &Metrics{
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_requests_total",
				Help:      "The number of token requests by cache outcome.",
			}, []string{"result"},
		),
		issuanceAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "issuance_attempts_total",
				Help:      "The number of calls to the issuance service by outcome.",
			}, []string{"result"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fallback_total",
				Help:      "The number of fallback password lookups by outcome.",
			}, []string{"result"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "refresh_total",
				Help:      "The number of scheduled refreshes by outcome.",
			}, []string{"result"},
		),
	}
}

// CacheRequest counts a token request answered with result.
func (m *Metrics) CacheRequest(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// IssuanceAttempt counts one call to the issuance service.
func (m *Metrics) IssuanceAttempt(result string) {
	if m == nil {
		return
	}
	m.issuanceAttempts.WithLabelValues(result).Inc()
}

// Fallback counts one fallback lookup.
func (m *Metrics) Fallback(result string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(result).Inc()
}

// Refresh counts one scheduled refresh.
func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.cacheRequests.Describe(ch)
	m.issuanceAttempts.Describe(ch)
	m.fallbacks.Describe(ch)
	m.refreshes.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.cacheRequests.Collect(ch)
	m.issuanceAttempts.Collect(ch)
	m.fallbacks.Collect(ch)
	m.refreshes.Collect(ch)
}
