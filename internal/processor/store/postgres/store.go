package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tally/internal/processor"
	txcontext "tally/pkg/platform/tx"
)

// Store persists idempotency keys in the processor_events table. Claim rides
// the transaction in context when one is present, so recording the key and
// writing the audit record commit or roll back together.
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

// Claim inserts the key as processing if unseen. ON CONFLICT DO NOTHING
// makes the check and the record one statement; a losing concurrent
// duplicate sees zero rows affected and reads back the winner's state.
func (s *Store) Claim(ctx context.Context, key string) (bool, processor.EventState, error) {
	now := time.Now().UTC()
	insert := `
		INSERT INTO processor_events (idempotency_key, state, first_seen_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, insert, key, string(processor.StateProcessing), now)
	if err != nil {
		return false, "", fmt.Errorf("claim idempotency key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, "", fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return true, processor.StateProcessing, nil
	}

	var state string
	query := `SELECT state FROM processor_events WHERE idempotency_key = $1`
	if err := s.execer(ctx).QueryRowContext(ctx, query, key).Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The winning insert has not committed yet. Treat as in flight.
			return false, processor.StateProcessing, nil
		}
		return false, "", fmt.Errorf("read idempotency key state: %w", err)
	}
	return false, processor.EventState(state), nil
}

func (s *Store) SetState(ctx context.Context, key string, state processor.EventState, errMessage string) error {
	query := `
		UPDATE processor_events
		SET state = $1, error_message = $2, updated_at = $3
		WHERE idempotency_key = $4
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, string(state), errMessage, time.Now().UTC(), key); err != nil {
		return fmt.Errorf("update idempotency key state: %w", err)
	}
	return nil
}
