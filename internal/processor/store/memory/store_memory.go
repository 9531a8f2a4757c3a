package memory

import (
	"context"
	"sync"
	"time"

	"tally/internal/processor"
)

type entry struct {
	state       processor.EventState
	errMessage  string
	firstSeenAt time.Time
	updatedAt   time.Time
}

// InMemoryStore holds idempotency keys in a mutex-guarded map. Claim is
// atomic under the mutex, so of two concurrent duplicates exactly one claims
// the key and the other observes the in-flight "processing" state.
type InMemoryStore struct {
	mu   sync.Mutex
	keys map[string]entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{keys: make(map[string]entry)}
}

func (s *InMemoryStore) Claim(_ context.Context, key string) (bool, processor.EventState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.keys[key]; ok {
		return false, existing.state, nil
	}
	now := time.Now().UTC()
	s.keys[key] = entry{state: processor.StateProcessing, firstSeenAt: now, updatedAt: now}
	return true, processor.StateProcessing, nil
}

func (s *InMemoryStore) SetState(_ context.Context, key string, state processor.EventState, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.keys[key]
	if !ok {
		existing = entry{firstSeenAt: time.Now().UTC()}
	}
	existing.state = state
	existing.errMessage = errMessage
	existing.updatedAt = time.Now().UTC()
	s.keys[key] = existing
	return nil
}

// State reports the recorded state of a key, for tests.
func (s *InMemoryStore) State(key string) (processor.EventState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.keys[key]
	return e.state, ok
}
