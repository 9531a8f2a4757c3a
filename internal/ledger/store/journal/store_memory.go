package journal

import (
	"context"
	"sync"

	"tally/internal/ledger/models"
	"tally/pkg/platform/sentinel"
)

// InMemoryStore keeps journal groups in a mutex-guarded map for tests and
// local runs. Groups are stored whole so inserts and transitions are atomic
// across all legs.
type InMemoryStore struct {
	mu     sync.RWMutex
	groups map[string][]models.JournalEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{groups: make(map[string][]models.JournalEntry)}
}

func (s *InMemoryStore) InsertGroup(_ context.Context, entries []models.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	groupID := entries[0].GroupID
	if _, ok := s.groups[groupID]; ok {
		return sentinel.ErrAlreadyExists
	}
	stored := make([]models.JournalEntry, len(entries))
	copy(stored, entries)
	s.groups[groupID] = stored
	return nil
}

func (s *InMemoryStore) GetGroup(_ context.Context, groupID string) ([]models.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.groups[groupID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]models.JournalEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// TransitionGroup moves every leg of a group from the expected current
// status to the target. A group whose status no longer matches `from` means
// a concurrent transition landed first; the caller re-reads and decides.
func (s *InMemoryStore) TransitionGroup(_ context.Context, groupID string, from, to models.PostingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.groups[groupID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for _, e := range entries {
		if e.Status != from {
			return sentinel.ErrConflict
		}
	}
	for i := range entries {
		entries[i].Status = to
	}
	return nil
}
