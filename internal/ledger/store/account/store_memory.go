package account

import (
	"context"
	"sync"
	"time"

	"tally/internal/ledger/models"
	"tally/internal/money"
	"tally/pkg/platform/sentinel"
)

// InMemoryStore is a mutex-guarded account store for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[string]models.Account)}
}

func (s *InMemoryStore) Create(_ context.Context, account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &account, nil
}

func (s *InMemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.accounts[id]
	return ok, nil
}

// CompareAndSwapBalance sets the account balance only if the stored version
// still matches expectedVersion. A mismatch means a concurrent writer won;
// callers re-read and retry.
func (s *InMemoryStore) CompareAndSwapBalance(_ context.Context, id string, expectedVersion int64, balance money.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if account.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	account.Balance = balance
	account.Version++
	account.UpdatedAt = time.Now().UTC()
	s.accounts[id] = account
	return nil
}
