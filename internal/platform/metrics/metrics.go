package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics. Domain subsystems register
// their own metrics in their local metrics packages.
type Metrics struct {
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDurationMs    *prometheus.HistogramVec
}

// New creates and registers process-level metrics.
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_http_requests_total",
			Help: "Total HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tally_http_request_duration_ms",
			Help:    "HTTP request latency in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"route"}),
	}
}
