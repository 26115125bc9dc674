// Package metrics exposes the gateway's prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "blackroad"
	subsystem = "gateway"
)

type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheEvents     *prometheus.CounterVec
	rateLimitEvents *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	accessLogDrops  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total requests processed, by route prefix, method and status.",
			},
			[]string{"route", "method", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds, by route prefix.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_events_total",
				Help:      "Cache layer outcomes: hit, miss, bypass or error.",
			},
			[]string{"event"},
		),

		rateLimitEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ratelimit_events_total",
				Help:      "Rate limiter outcomes: allowed, limited or error.",
			},
			[]string{"event"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "breaker_state",
				Help:      "Circuit breaker state per upstream: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"upstream"},
		),

		accessLogDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "accesslog_dropped_total",
				Help:      "Access log entries dropped because the writer queue was full.",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.requestsTotal,
		m.requestDuration,
		m.cacheEvents,
		m.rateLimitEvents,
		m.breakerState,
		m.accessLogDrops,
	)

	return m
}

func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheEvent(event string) {
	m.cacheEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) RateLimitEvent(event string) {
	m.rateLimitEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetBreakerState(upstream string, state float64) {
	m.breakerState.WithLabelValues(upstream).Set(state)
}

func (m *Metrics) AccessLogDropped() {
	m.accessLogDrops.Inc()
}

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
