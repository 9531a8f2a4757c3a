package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_ratelimit_decisions_total",
			Help: "Limiter decisions by class and outcome.",
		}, []string{"class", "outcome"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_ratelimit_store_errors_total",
			Help: "Window store failures, each one a fail-open allow.",
		}),
	}
}
