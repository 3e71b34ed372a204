package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the SSO service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsTotal     *prometheus.CounterVec
	AuthFailuresTotal     *prometheus.CounterVec
	TokenExchangeDuration *prometheus.HistogramVec

	// Session metrics
	ActiveSessions        prometheus.Gauge
	SessionsCreatedTotal  *prometheus.CounterVec
	SessionsEvictedTotal  prometheus.Counter
	SessionCleanupRuns    prometheus.Counter

	// Provider metrics
	ProvidersConfigured *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics on a private
// registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autobot_sso_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autobot_sso_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autobot_sso_auth_attempts_total",
				Help: "Total authentication attempts by provider, protocol and result",
			},
			[]string{"provider", "protocol", "result"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autobot_sso_auth_failures_total",
				Help: "Total failed authentications by provider and reason class",
			},
			[]string{"provider", "reason"},
		),
		TokenExchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autobot_sso_token_exchange_duration_seconds",
				Help:    "OAuth2 token exchange duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "autobot_sso_active_sessions",
				Help: "Number of active SSO sessions",
			},
		),
		SessionsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autobot_sso_sessions_created_total",
				Help: "Total sessions created by provider",
			},
			[]string{"provider"},
		),
		SessionsEvictedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "autobot_sso_sessions_evicted_total",
				Help: "Total sessions evicted by expiry",
			},
		),
		SessionCleanupRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "autobot_sso_session_cleanup_runs_total",
				Help: "Total periodic session cleanup sweeps",
			},
		),
		ProvidersConfigured: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "autobot_sso_providers_configured",
				Help: "Configured providers by protocol and enabled state",
			},
			[]string{"protocol", "enabled"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.AuthFailuresTotal,
		m.TokenExchangeDuration,
		m.ActiveSessions,
		m.SessionsCreatedTotal,
		m.SessionsEvictedTotal,
		m.SessionCleanupRuns,
		m.ProvidersConfigured,
	)
	return m
}

// Handler returns an HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveAuthAttempt records an authentication attempt outcome
func (m *Metrics) ObserveAuthAttempt(provider, protocol string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.AuthAttemptsTotal.WithLabelValues(provider, protocol, result).Inc()
}
