// Package metrics exposes Prometheus collectors for the progress service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcomes recorded by ObserveOperation.
const (
	OutcomeOK         = "ok"
	OutcomeNotFound   = "not_found"
	OutcomeBadRequest = "bad_request"
	OutcomeError      = "error"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"method", "route"},
	)

	progressOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_operations_total",
			Help: "Total number of progress operations, labeled by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	progressEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_events_published_total",
			Help: "Total number of progress events handed to the publisher, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveOperation counts one handler operation (read, create, update,
// preflight, rejected) with its outcome.
func ObserveOperation(operation, outcome string) {
	progressOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveEvent counts one publish attempt.
func ObserveEvent(outcome string) {
	progressEventsTotal.WithLabelValues(outcome).Inc()
}
