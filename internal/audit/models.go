// Package audit provides the durable trail of every state-changing action in
// the financial core. Records are append-only: once written they are never
// updated or deleted here. The sink absorbs storage failures with a bounded
// retry queue so audit unavailability never blocks the operation it
// describes.
package audit

import (
	"context"
	"time"
)

// Action names a state-changing action. Stable API: actions appear in stored
// records and operator queries.
type Action string

const (
	ActionJournalPosted       Action = "journal_posted"
	ActionJournalRejected     Action = "journal_rejected"
	ActionJournalTransitioned Action = "journal_transitioned"
	ActionBalanceApplied      Action = "balance_applied"
	ActionBalanceRejected     Action = "balance_rejected"
	ActionAccountCreated      Action = "account_created"
	ActionEventApplied        Action = "event_applied"
	ActionEventRejected       Action = "event_rejected"
	ActionEventFailed         Action = "event_failed"
	ActionRateLimitExceeded   Action = "rate_limit_exceeded"
)

// Record describes one state change attempt, success or failure. StateBefore
// and StateAfter are structured key-value snapshots (validated shape, never
// opaque blobs).
type Record struct {
	ID           string
	Action       Action
	ResourceType string
	ResourceID   string
	ActorID      string
	OrgID        string
	StateBefore  map[string]string
	StateAfter   map[string]string
	ErrorMessage string
	RequestID    string
	Timestamp    time.Time
}

// Query filters the read-only retrieval surface.
type Query struct {
	ResourceID string
	OrgID      string
	From       time.Time
	To         time.Time
	Limit      int
}

// Store persists audit records. Implementations must treat Append as
// append-only.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
}

// QueuedItem wraps a record that failed to persist, tracking retry state. It
// lives only in process memory; its job is "don't lose entries across retries
// within the process lifetime", not cross-process durability.
type QueuedItem struct {
	Record       Record
	Attempts     int
	FirstAttempt time.Time
	LastAttempt  time.Time
	NextAttempt  time.Time
}
