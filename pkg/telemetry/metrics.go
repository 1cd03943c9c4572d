// Package telemetry holds the Prometheus collectors of the service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry
type Metrics struct {
	registry *prometheus.Registry

	BackendQueries *prometheus.CounterVec
	BackendLatency *prometheus.HistogramVec
	Discrepancies  *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		BackendQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traceboard_backend_queries_total",
				Help: "Analytics backend queries by backend, operation and outcome",
			},
			[]string{"backend", "operation", "status"},
		),
		BackendLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "traceboard_backend_query_duration_seconds",
				Help:    "Analytics backend query duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"backend", "operation"},
		),
		Discrepancies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traceboard_backend_discrepancies_total",
				Help: "Discrepancies found between backends in comparison mode",
			},
			[]string{"operation"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traceboard_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "traceboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// ObserveBackend records one backend call
func (m *Metrics) ObserveBackend(backend, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BackendQueries.WithLabelValues(backend, operation, status).Inc()
	m.BackendLatency.WithLabelValues(backend, operation).Observe(time.Since(started).Seconds())
}

// AddDiscrepancies counts discrepancies found for an operation
func (m *Metrics) AddDiscrepancies(operation string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Discrepancies.WithLabelValues(operation).Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
