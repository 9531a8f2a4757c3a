package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// flakyStore fails the first failUntil Append calls, then succeeds. It
// records every accepted record so tests can assert exactly-once delivery.
type flakyStore struct {
	mu        sync.Mutex
	calls     int
	failUntil int
	accepted  []Record
}

func (f *flakyStore) Append(_ context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("storage unavailable")
	}
	f.accepted = append(f.accepted, rec)
	return nil
}

func (f *flakyStore) Query(_ context.Context, _ Query) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Record{}, f.accepted...), nil
}

func (f *flakyStore) acceptedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accepted)
}

type SinkSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.DiscardHandler)
}

func (s *SinkSuite) TestRecordPersistsSynchronously() {
	store := &flakyStore{}
	queue := NewRetryQueue(10)
	sink := NewSink(store, queue, s.logger)

	sink.Record(s.ctx, Record{Action: ActionBalanceApplied, ResourceType: "account", ResourceID: "acct-1"})

	s.Equal(1, store.acceptedCount())
	s.Equal(0, queue.Len())

	rec := store.accepted[0]
	s.NotEmpty(rec.ID, "sink must assign an ID")
	s.False(rec.Timestamp.IsZero(), "sink must stamp the record")
}

func (s *SinkSuite) TestRecordQueuesOnFailure() {
	store := &flakyStore{failUntil: 1}
	queue := NewRetryQueue(10)
	sink := NewSink(store, queue, s.logger)

	// Must not panic or propagate: the sink absorbs the failure.
	sink.Record(s.ctx, Record{Action: ActionJournalPosted, ResourceID: "grp-1"})

	s.Equal(0, store.acceptedCount())
	s.Equal(1, queue.Len())

	items := queue.DequeueBatch(1)
	s.Require().Len(items, 1)
	s.Equal(1, items[0].Attempts)
	s.False(items[0].NextAttempt.IsZero())
}

func (s *SinkSuite) TestQueryPassesThrough() {
	store := &flakyStore{}
	sink := NewSink(store, NewRetryQueue(10), s.logger)

	sink.Record(s.ctx, Record{Action: ActionEventApplied, ResourceID: "evt-1"})

	records, err := sink.Query(s.ctx, Query{})
	s.Require().NoError(err)
	s.Len(records, 1)
}

type WorkerSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.DiscardHandler)
}

func (s *WorkerSuite) TestRetryEventuallyPersistsExactlyOnce() {
	// Store rejects the first two writes and accepts the third: with a
	// ceiling of three attempts the record must land exactly once.
	store := &flakyStore{failUntil: 2}
	queue := NewRetryQueue(10)
	sink := NewSink(store, queue, s.logger, WithRetryBase(time.Nanosecond))
	worker := NewWorker(store, queue, s.logger, WithRetryPolicy(time.Nanosecond, 3, 10))

	sink.Record(s.ctx, Record{Action: ActionBalanceApplied, ResourceID: "acct-9"})
	s.Equal(1, queue.Len())

	deadline := time.Now().Add(time.Second)
	for store.acceptedCount() == 0 && time.Now().Before(deadline) {
		worker.drainOnce(s.ctx, time.Now())
	}

	s.Equal(1, store.acceptedCount(), "record persisted exactly once")
	s.Equal(0, queue.Len())
}

func (s *WorkerSuite) TestAbandonAfterCeiling() {
	store := &flakyStore{failUntil: 1000}
	queue := NewRetryQueue(10)
	sink := NewSink(store, queue, s.logger, WithRetryBase(time.Nanosecond))
	worker := NewWorker(store, queue, s.logger, WithRetryPolicy(time.Nanosecond, 3, 10))

	sink.Record(s.ctx, Record{Action: ActionJournalPosted, ResourceID: "grp-2"})

	deadline := time.Now().Add(time.Second)
	for queue.Len() > 0 && time.Now().Before(deadline) {
		worker.drainOnce(s.ctx, time.Now().Add(time.Hour))
	}

	s.Equal(0, queue.Len(), "abandoned item leaves the queue")
	s.Equal(0, store.acceptedCount())
}

func (s *WorkerSuite) TestNotDueItemsRequeued() {
	store := &flakyStore{}
	queue := NewRetryQueue(10)
	worker := NewWorker(store, queue, s.logger, WithRetryPolicy(time.Minute, 3, 10))

	queue.Enqueue(QueuedItem{
		Record:      Record{ID: "r-1"},
		Attempts:    1,
		NextAttempt: time.Now().Add(time.Hour),
	})

	worker.drainOnce(s.ctx, time.Now())

	s.Equal(1, queue.Len(), "item not yet due stays queued")
	s.Equal(0, store.acceptedCount())
}

func (s *WorkerSuite) TestRunStopsOnContextCancel() {
	store := &flakyStore{}
	queue := NewRetryQueue(10)
	worker := NewWorker(store, queue, s.logger, WithRetryPolicy(time.Millisecond, 3, 10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("worker did not stop on cancellation")
	}
}

func TestRetryQueueBounds(t *testing.T) {
	queue := NewRetryQueue(3)

	for i := 0; i < 3; i++ {
		evicted := queue.Enqueue(QueuedItem{Record: Record{ID: string(rune('a' + i))}})
		if evicted {
			t.Fatalf("unexpected eviction at %d", i)
		}
	}

	if !queue.Enqueue(QueuedItem{Record: Record{ID: "d"}}) {
		t.Fatal("expected eviction when full")
	}
	if queue.Len() != 3 {
		t.Fatalf("expected len 3, got %d", queue.Len())
	}
	if queue.Evicted() != 1 {
		t.Fatalf("expected 1 eviction, got %d", queue.Evicted())
	}

	// Oldest was evicted: FIFO order of the survivors is b, c, d.
	items := queue.DequeueBatch(3)
	if items[0].Record.ID != "b" || items[1].Record.ID != "c" || items[2].Record.ID != "d" {
		t.Fatalf("unexpected order: %q %q %q", items[0].Record.ID, items[1].Record.ID, items[2].Record.ID)
	}
}
