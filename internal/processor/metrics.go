package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Events            *prometheus.CounterVec
	SignatureFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_processor_events_total",
			Help: "Webhook deliveries by gate outcome.",
		}, []string{"outcome"}),
		SignatureFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_processor_signature_failures_total",
			Help: "Deliveries rejected by signature verification.",
		}),
	}
}
