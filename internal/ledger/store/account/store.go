package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tally/internal/ledger/models"
	"tally/internal/money"
	"tally/pkg/platform/sentinel"
	txcontext "tally/pkg/platform/tx"
)

// Store persists accounts in Postgres. Balance writes are version-guarded so
// concurrent mutators never overwrite each other.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Create(ctx context.Context, account models.Account) error {
	query := `
		INSERT INTO accounts (id, org_id, name, balance_cents, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		account.ID,
		account.OrgID,
		account.Name,
		account.Balance.Cents(),
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, org_id, name, balance_cents, version, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	var (
		account models.Account
		cents   int64
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.OrgID,
		&account.Name,
		&cents,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	account.Balance = money.FromCents(cents)
	return &account, nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check account exists: %w", err)
	}
	return exists, nil
}

// CompareAndSwapBalance applies the new balance only if the row version is
// still expectedVersion. Zero rows affected means either the account is gone
// or a concurrent writer bumped the version first; the follow-up existence
// probe disambiguates.
func (s *Store) CompareAndSwapBalance(ctx context.Context, id string, expectedVersion int64, balance money.Money) error {
	query := `
		UPDATE accounts
		SET balance_cents = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, balance.Cents(), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	exists, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}
