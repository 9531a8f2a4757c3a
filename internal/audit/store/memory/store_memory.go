package memory

import (
	"context"
	"sort"
	"sync"

	"tally/internal/audit"
)

// InMemoryStore keeps audit records in process memory. Used in tests and
// in-memory mode; the record shape and query semantics match the postgres
// store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, q audit.Query) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, rec := range s.records {
		if q.ResourceID != "" && rec.ResourceID != q.ResourceID {
			continue
		}
		if q.OrgID != "" && rec.OrgID != q.OrgID {
			continue
		}
		if !q.From.IsZero() && rec.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && rec.Timestamp.After(q.To) {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Len reports the number of stored records. For tests.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
