package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tally/internal/audit/metrics"
)

// Sink is the write side of the audit trail. Record attempts a synchronous
// durable write and, on failure, hands the record to the retry queue. It
// never propagates an error to its caller: a request must not fail because
// its audit trail is momentarily unwritable.
type Sink struct {
	store   Store
	queue   *RetryQueue
	logger  *slog.Logger
	metrics *metrics.Metrics

	retryBase time.Duration
}

type SinkOption func(*Sink)

func WithMetrics(m *metrics.Metrics) SinkOption {
	return func(s *Sink) {
		s.metrics = m
	}
}

// WithRetryBase overrides the first-retry delay.
func WithRetryBase(d time.Duration) SinkOption {
	return func(s *Sink) {
		if d > 0 {
			s.retryBase = d
		}
	}
}

func NewSink(store Store, queue *RetryQueue, logger *slog.Logger, opts ...SinkOption) *Sink {
	s := &Sink{
		store:     store,
		queue:     queue,
		logger:    logger,
		retryBase: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record writes rec to the store, queueing it for retry on failure. Fills in
// ID and Timestamp when the caller left them zero.
func (s *Sink) Record(ctx context.Context, rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if err := s.store.Append(ctx, rec); err != nil {
		now := time.Now()
		evicted := s.queue.Enqueue(QueuedItem{
			Record:       rec,
			Attempts:     1,
			FirstAttempt: now,
			LastAttempt:  now,
			NextAttempt:  now.Add(s.retryBase),
		})
		s.logger.WarnContext(ctx, "audit write failed, queued for retry",
			"record_id", rec.ID,
			"action", rec.Action,
			"resource_id", rec.ResourceID,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.WriteFailures.Inc()
			s.metrics.QueueDepth.Set(float64(s.queue.Len()))
			if evicted {
				s.metrics.QueueEvictions.Inc()
			}
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RecordsWritten.Inc()
	}
}

// Query exposes the read-only retrieval surface over the same record shape.
func (s *Sink) Query(ctx context.Context, q Query) ([]Record, error) {
	return s.store.Query(ctx, q)
}
