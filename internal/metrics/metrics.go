// Package metrics exports Prometheus metrics for request execution.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outpost_requests_total",
			Help: "Total requests executed by service, method, and status",
		},
		[]string{"service", "method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outpost_request_duration_seconds",
			Help:    "Duration of request execution including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outpost_retries_total",
			Help: "Total retries performed by service",
		},
		[]string{"service"},
	)

	errorsByKind = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outpost_errors_total",
			Help: "Total classified errors by service and kind",
		},
		[]string{"service", "kind"},
	)
)

// RecordRequest records one completed request call.
// A status of 0 means the request never reached the remote service.
func RecordRequest(service, method string, status int, duration time.Duration, retries int) {
	requestsTotal.WithLabelValues(service, method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
	if retries > 0 {
		retriesTotal.WithLabelValues(service).Add(float64(retries))
	}
}

// RecordError records one classified error surfaced to a caller.
func RecordError(service, kind string) {
	errorsByKind.WithLabelValues(service, kind).Inc()
}
