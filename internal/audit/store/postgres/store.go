package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"tally/internal/audit"
	txcontext "tally/pkg/platform/tx"
)

// Store persists audit records in the append-only audit_records table. When
// the context carries a transaction (idempotency-gate writes), the insert
// joins it so key recording and audit recording are one atomic write.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	before, err := marshalState(rec.StateBefore)
	if err != nil {
		return fmt.Errorf("marshal state_before: %w", err)
	}
	after, err := marshalState(rec.StateAfter)
	if err != nil {
		return fmt.Errorf("marshal state_after: %w", err)
	}

	query := `
		INSERT INTO audit_records (
			id, action, resource_type, resource_id, actor_id, org_id,
			state_before, state_after, error_message, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		rec.ID,
		string(rec.Action),
		rec.ResourceType,
		rec.ResourceID,
		rec.ActorID,
		rec.OrgID,
		before,
		after,
		rec.ErrorMessage,
		rec.RequestID,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}

	if q.ResourceID != "" {
		add("resource_id = ", q.ResourceID)
	}
	if q.OrgID != "" {
		add("org_id = ", q.OrgID)
	}
	if !q.From.IsZero() {
		add("created_at >= ", q.From)
	}
	if !q.To.IsZero() {
		add("created_at <= ", q.To)
	}

	query := `
		SELECT id, action, resource_type, resource_id, actor_id, org_id,
		       state_before, state_after, error_message, request_id, created_at
		FROM audit_records
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record

	for rows.Next() {
		var (
			rec           audit.Record
			action        string
			before, after []byte
		)
		err := rows.Scan(
			&rec.ID,
			&action,
			&rec.ResourceType,
			&rec.ResourceID,
			&rec.ActorID,
			&rec.OrgID,
			&before,
			&after,
			&rec.ErrorMessage,
			&rec.RequestID,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Action = audit.Action(action)
		if rec.StateBefore, err = unmarshalState(before); err != nil {
			return nil, fmt.Errorf("unmarshal state_before: %w", err)
		}
		if rec.StateAfter, err = unmarshalState(after); err != nil {
			return nil, fmt.Errorf("unmarshal state_after: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

func marshalState(state map[string]string) ([]byte, error) {
	if state == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(state)
}

func unmarshalState(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var state map[string]string
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	if len(state) == 0 {
		return nil, nil
	}
	return state, nil
}
