package audit

import (
	"context"
	"log/slog"
	"time"

	"tally/internal/audit/metrics"
)

// Worker drains the retry queue in the background. Each cycle it takes up to
// a batch of due items and retries their writes with exponential backoff
// (base delay x 2^attempt). An item that exhausts the retry ceiling is
// abandoned with an error log and a metrics signal, never silently.
type Worker struct {
	store   Store
	queue   *RetryQueue
	logger  *slog.Logger
	metrics *metrics.Metrics

	base        time.Duration
	maxAttempts int
	batchSize   int
	interval    time.Duration
}

type WorkerOption func(*Worker)

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithRetryPolicy overrides backoff base, retry ceiling and drain batch size.
func WithRetryPolicy(base time.Duration, maxAttempts, batchSize int) WorkerOption {
	return func(w *Worker) {
		if base > 0 {
			w.base = base
		}
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

func NewWorker(store Store, queue *RetryQueue, logger *slog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:       store,
		queue:       queue,
		logger:      logger,
		base:        500 * time.Millisecond,
		maxAttempts: 3,
		batchSize:   50,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.interval = w.base
	return w
}

// Run drains the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drainOnce(ctx, time.Now())
		}
	}
}

// drainOnce retries up to one batch of due items. Items not yet due go back
// on the queue untouched.
func (w *Worker) drainOnce(ctx context.Context, now time.Time) {
	items := w.queue.DequeueBatch(w.batchSize)
	for _, item := range items {
		if now.Before(item.NextAttempt) {
			w.queue.Enqueue(item)
			continue
		}
		w.retry(ctx, item, now)
	}
	if w.metrics != nil {
		w.metrics.QueueDepth.Set(float64(w.queue.Len()))
	}
}

func (w *Worker) retry(ctx context.Context, item QueuedItem, now time.Time) {
	if w.metrics != nil {
		w.metrics.RetriesTotal.Inc()
	}

	err := w.store.Append(ctx, item.Record)
	if err == nil {
		if w.metrics != nil {
			w.metrics.Recovered.Inc()
		}
		w.logger.InfoContext(ctx, "audit record recovered by retry",
			"record_id", item.Record.ID,
			"attempts", item.Attempts+1,
		)
		return
	}

	item.Attempts++
	item.LastAttempt = now

	if item.Attempts >= w.maxAttempts {
		// Operators alert on tally_audit_abandoned_total.
		w.logger.ErrorContext(ctx, "audit record abandoned after retry ceiling",
			"record_id", item.Record.ID,
			"action", item.Record.Action,
			"resource_type", item.Record.ResourceType,
			"resource_id", item.Record.ResourceID,
			"attempts", item.Attempts,
			"first_attempt", item.FirstAttempt,
			"error", err,
		)
		if w.metrics != nil {
			w.metrics.Abandoned.Inc()
		}
		return
	}

	item.NextAttempt = now.Add(w.base << uint(item.Attempts))
	w.queue.Enqueue(item)
}
