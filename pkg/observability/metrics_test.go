package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	require.NotNil(t, m)
	assert.NotNil(t, m.AuthAttemptsTotal)
	assert.NotNil(t, m.ActiveSessions)
}

func TestMetrics_ObserveAuthAttempt(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveAuthAttempt("okta", "oauth2", true)
	m.ObserveAuthAttempt("okta", "oauth2", true)
	m.ObserveAuthAttempt("okta", "oauth2", false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("okta", "oauth2", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("okta", "oauth2", "failure")))
}

func TestMetrics_ObserveHTTPRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveHTTPRequest("GET", "/sso/providers", 200, 15*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/sso/providers", "200")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ActiveSessions.Set(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "autobot_sso_active_sessions 4")
}
