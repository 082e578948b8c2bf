package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the relay.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	rateLimited     prometheus.Counter
	activeSessions  prometheus.GaugeFunc
}

// NewMetrics creates a metrics collector on its own registry. sessionCount
// feeds the active-sessions gauge; nil disables it.
func NewMetrics(sessionCount func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airelay_requests_total",
			Help: "Completed requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airelay_request_duration_seconds",
			Help:    "End-to-end request latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airelay_tokens_total",
			Help: "Tokens consumed by provider and direction.",
		}, []string{"provider", "type"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airelay_provider_retries_total",
			Help: "Provider attempt retries by provider and error kind.",
		}, []string{"provider", "kind"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airelay_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.tokensTotal, m.retriesTotal, m.rateLimited)

	if sessionCount != nil {
		m.activeSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "airelay_active_sessions",
			Help: "Live conversation sessions.",
		}, func() float64 { return float64(sessionCount()) })
		reg.MustRegister(m.activeSessions)
	}
	return m
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(provider, outcome string, duration time.Duration, inputTokens, outputTokens int) {
	m.requestsTotal.WithLabelValues(provider, outcome).Inc()
	m.requestDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.tokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	m.tokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
}

// RecordRetry records one provider retry.
func (m *Metrics) RecordRetry(provider, kind string) {
	m.retriesTotal.WithLabelValues(provider, kind).Inc()
}

// RecordRateLimited records an admission rejection.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
