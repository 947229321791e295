package observability

import (
	"bufio"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the auth counters
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsTotal      *prometheus.CounterVec
	PasskeyCeremoniesTotal *prometheus.CounterVec
	TokensIssuedTotal      *prometheus.CounterVec
	CounterRegressionTotal prometheus.Counter

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Presence sockets currently open
	PresenceConnections prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnstile_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_auth_attempts_total",
				Help: "Authentication attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		PasskeyCeremoniesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_passkey_ceremonies_total",
				Help: "Passkey ceremony steps by ceremony, step and outcome",
			},
			[]string{"ceremony", "step", "outcome"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_tokens_issued_total",
				Help: "Signed tokens issued by kind",
			},
			[]string{"kind"},
		),
		CounterRegressionTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "turnstile_passkey_counter_regressions_total",
				Help: "Assertions whose sign counter did not increase",
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstile_cache_errors_total",
				Help: "Cache backend errors that degraded to a miss",
			},
			[]string{"cache", "operation"},
		),

		PresenceConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "turnstile_presence_connections",
				Help: "Open presence websocket connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.PasskeyCeremoniesTotal,
		m.TokensIssuedTotal,
		m.CounterRegressionTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.PresenceConnections,
	)

	return m
}

// RegisterDBStats exports connection pool statistics for db
func RegisterDBStats(registry *prometheus.Registry, db *sql.DB, name string) {
	registry.MustRegister(collectors.NewDBStatsCollector(db, name))
}

// The recorders below are nil-safe so components can run without metrics.

// RecordAuthAttempt counts a password, passkey or refresh authentication attempt
func (m *Metrics) RecordAuthAttempt(method string, success bool) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(method, outcome(success)).Inc()
}

// RecordCeremony counts a passkey ceremony step
func (m *Metrics) RecordCeremony(ceremony, step string, success bool) {
	if m == nil {
		return
	}
	m.PasskeyCeremoniesTotal.WithLabelValues(ceremony, step, outcome(success)).Inc()
}

// RecordTokenIssued counts a signed token
func (m *Metrics) RecordTokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(kind).Inc()
}

// RecordCounterRegression counts an assertion with a non-increasing sign counter
func (m *Metrics) RecordCounterRegression() {
	if m == nil {
		return
	}
	m.CounterRegressionTotal.Inc()
}

// RecordCacheHit counts a cache hit
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss counts a cache miss
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordCacheError counts a backend failure
func (m *Metrics) RecordCacheError(cache, operation string) {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.WithLabelValues(cache, operation).Inc()
}

// RecordPresenceConnection tracks a presence socket opening or closing
func (m *Metrics) RecordPresenceConnection(open bool) {
	if m == nil {
		return
	}
	if open {
		m.PresenceConnections.Inc()
		return
	}
	m.PresenceConnections.Dec()
}

func outcome(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to websocket upgrades
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// Unwrap exposes the wrapped writer to http.ResponseController
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by route template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
