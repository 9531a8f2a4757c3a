package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RecordsWritten prometheus.Counter
	WriteFailures  prometheus.Counter
	RetriesTotal   prometheus.Counter
	Recovered      prometheus.Counter
	Abandoned      prometheus.Counter
	QueueEvictions prometheus.Counter
	QueueDepth     prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		RecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_audit_records_written_total",
			Help: "Audit records persisted on the first attempt",
		}),
		WriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_audit_write_failures_total",
			Help: "Audit writes that failed and entered the retry queue",
		}),
		RetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_audit_retries_total",
			Help: "Retry attempts made by the background drain worker",
		}),
		Recovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_audit_recovered_total",
			Help: "Audit records persisted by a retry after initial failure",
		}),
		Abandoned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_audit_abandoned_total",
			Help: "Audit records dropped after exhausting the retry ceiling; any increase needs operator attention",
		}),
		QueueEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_audit_queue_evictions_total",
			Help: "Queued records evicted because the retry queue was full",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tally_audit_queue_depth",
			Help: "Current number of records waiting for retry",
		}),
	}
}
