package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"tally/internal/ledger/models"
	"tally/internal/money"
	"tally/pkg/platform/sentinel"
	txcontext "tally/pkg/platform/tx"
)

// Store persists journal entries in Postgres. Entries of a group are written
// in one statement so a group is never half-persisted, and status
// transitions are guarded on the expected current status.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) InsertGroup(ctx context.Context, entries []models.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO journal_entries (
			id, group_id, account_id, role, amount_cents, status,
			description, metadata, created_by, created_at
		)
		VALUES
	`
	args := make([]any, 0, len(entries)*10)
	for i, e := range entries {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if i > 0 {
			query += ", "
		}
		base := i * 10
		query += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10)
		args = append(args,
			e.ID, e.GroupID, e.AccountID, string(e.Role), e.Amount.Cents(),
			string(e.Status), e.Description, metadata, e.CreatedBy, e.CreatedAt,
		)
	}

	if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert journal group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID string) ([]models.JournalEntry, error) {
	query := `
		SELECT id, group_id, account_id, role, amount_cents, status,
		       description, metadata, created_by, created_at
		FROM journal_entries
		WHERE group_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("select journal group: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var (
			e        models.JournalEntry
			role     string
			cents    int64
			status   string
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &e.AccountID, &role, &cents, &status,
			&e.Description, &metadata, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Role = models.EntryRole(role)
		e.Amount = money.FromCents(cents)
		e.Status = models.PostingStatus(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return entries, nil
}

// TransitionGroup advances every leg of a group from the expected current
// status to the target in one guarded update. Zero rows affected means the
// group is missing or was transitioned concurrently; the existence probe
// disambiguates.
func (s *Store) TransitionGroup(ctx context.Context, groupID string, from, to models.PostingStatus) error {
	query := `
		UPDATE journal_entries
		SET status = $1
		WHERE group_id = $2 AND status = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, string(to), groupID, string(from))
	if err != nil {
		return fmt.Errorf("transition journal group: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}
