package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"emberwatch/internal/types"
)

// PrometheusMetrics implements MetricsCollector backed by the Prometheus
// client. It also exposes domain counters used by the prediction workflow and
// the historic cache.
type PrometheusMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec

	PredictionRequests *prometheus.CounterVec // labels: mode={live,simulated}, outcome={success,error}
	PredictorFallbacks prometheus.Counter
	HistoricCache      *prometheus.CounterVec // labels: result={hit,miss}
}

// NewPrometheusMetrics creates the metric set and registers it with reg.
// Passing a fresh registry from tests avoids duplicate-registration panics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "emberwatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, endpoint and status.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "endpoint", "status"}),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emberwatch",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, endpoint and status.",
		}, []string{"method", "endpoint", "status"}),
		PredictionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emberwatch",
			Name:      "prediction_requests_total",
			Help:      "Prediction submissions by serving mode and outcome.",
		}, []string{"mode", "outcome"}),
		PredictorFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emberwatch",
			Name:      "predictor_fallbacks_total",
			Help:      "Times the live compute path failed and the simulated path served the request.",
		}),
		HistoricCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emberwatch",
			Name:      "historic_cache_total",
			Help:      "Historic data cache lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.requestDuration,
		m.requestCount,
		m.PredictionRequests,
		m.PredictorFallbacks,
		m.HistoricCache,
	)

	return m
}

// RecordRequest implements MetricsCollector.
func (m *PrometheusMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
	m.requestCount.WithLabelValues(method, endpoint, status).Inc()
}

// RecordPrediction counts a prediction submission by serving mode and outcome.
func (m *PrometheusMetrics) RecordPrediction(mode types.PredictionMode, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.PredictionRequests.WithLabelValues(string(mode), outcome).Inc()
}

// RecordFallback counts a live-to-simulated fallback.
func (m *PrometheusMetrics) RecordFallback() {
	m.PredictorFallbacks.Inc()
}

// RecordHistoricCache counts a historic cache lookup.
func (m *PrometheusMetrics) RecordHistoricCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.HistoricCache.WithLabelValues(result).Inc()
}
