package window

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count int64
	start time.Time
}

// InMemoryStore counts hits in fixed windows keyed by caller. Expired
// buckets reset lazily on the next hit; the janitor sweeps the ones nobody
// hits again so idle callers do not accumulate.
type InMemoryStore struct {
	mu      sync.Mutex
	buckets map[string]bucket
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		buckets: make(map[string]bucket),
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

// Hit increments the counter for key and reports the new count and when the
// window resets. The first hit of a window starts it.
func (s *InMemoryStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok || !now.Before(b.start.Add(window)) {
		b = bucket{start: now}
	}
	b.count++
	s.buckets[key] = b
	return b.count, b.start.Add(window), nil
}

// Sweep drops buckets whose window ended before the cutoff. Called by the
// janitor; window here is the longest configured window so nothing live is
// dropped.
func (s *InMemoryStore) Sweep(_ context.Context, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, b := range s.buckets {
		if !now.Before(b.start.Add(window)) {
			delete(s.buckets, key)
		}
	}
	return nil
}

// Len reports tracked bucket count, for tests and gauges.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
