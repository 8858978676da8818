package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributorMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveClaim("claim", ResultOK)
	m.ObserveClaim("claim", ResultOK)
	m.ObserveClaim("claim_all", ResultRejected)
	m.ObserveAdmin("pause", ResultOK)
	m.IncRateLimited()
	m.SetPaused(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.claims.WithLabelValues("claim", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.claims.WithLabelValues("claim_all", ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.admin.WithLabelValues("pause", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimit))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paused))

	m.SetPaused(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.paused))
}

func TestDistributorMetrics_ObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("/claim", http.MethodPost, http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest("", http.MethodGet, http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/claim", http.MethodPost, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unknown", http.MethodGet, "404")))
}

func TestDistributorMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveClaim("claim", ResultOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `distributor_claims_total{kind="claim",result="ok"} 1`)
}

func TestDistributorMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveAdmin("withdraw", ResultFailed)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.admin.WithLabelValues("withdraw", ResultFailed)))
}

func TestDistributorMetrics_NilSafe(t *testing.T) {
	var m *DistributorMetrics
	assert.NotPanics(t, func() {
		m.ObserveClaim("claim", ResultOK)
		m.ObserveAdmin("pause", ResultOK)
		m.ObserveRequest("/root", http.MethodGet, http.StatusOK, time.Millisecond)
		m.IncRateLimited()
		m.SetPaused(true)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
