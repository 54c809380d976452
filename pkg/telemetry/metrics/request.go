package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks HTTP traffic served by the admission API.
//
// Metrics:
//   - <namespace>_http_requests_total: Request count by route, method, code
//   - <namespace>_http_request_duration_seconds: Request duration histogram
//   - <namespace>_http_requests_in_flight: Requests currently being served
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(namespace string, registry prometheus.Registerer) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"route", "method", "code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
			[]string{"route", "method"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.inFlight,
	)

	return rm
}

// RecordRequest records a completed request.
func (rm *RequestMetrics) RecordRequest(route, method string, code int, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	rm.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}
