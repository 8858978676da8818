package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "distributor"

// Result labels shared by claim and admin counters.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// DistributorMetrics holds the collectors exported by a distributor server.
// A nil *DistributorMetrics is valid and records nothing.
type DistributorMetrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	claims    *prometheus.CounterVec
	admin     *prometheus.CounterVec
	rateLimit prometheus.Counter
	paused    prometheus.Gauge
}

// New registers a fresh set of collectors on a private registry.
func New() *DistributorMetrics {
	m := &DistributorMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total HTTP requests processed by the distributor.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts by kind and result.",
		}, []string{"kind", "result"}),
		admin: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_operations_total",
			Help:      "Owner operations by name and result.",
		}, []string{"operation", "result"}),
		rateLimit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Claim requests rejected by the per caller rate limiter.",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while claims are paused.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.durations,
		m.claims,
		m.admin,
		m.rateLimit,
		m.paused,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *DistributorMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and embedding.
func (m *DistributorMetrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *DistributorMetrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *DistributorMetrics) ObserveClaim(kind, result string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(kind, result).Inc()
}

func (m *DistributorMetrics) ObserveAdmin(operation, result string) {
	if m == nil {
		return
	}
	m.admin.WithLabelValues(operation, result).Inc()
}

func (m *DistributorMetrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimit.Inc()
}

func (m *DistributorMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}
