package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tally/internal/audit"
	"tally/internal/ledger/metrics"
	"tally/internal/ledger/models"
	"tally/internal/money"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/middleware/auth"
	"tally/pkg/platform/middleware/metadata"
	"tally/pkg/platform/sentinel"
	"tally/pkg/platform/tx"
)

// FundingAccountID is the system counter-account every balance mutation
// posts its offsetting leg against, so direct balance deltas still produce
// balanced journal groups.
const FundingAccountID = "sys-funding"

// maxCASRetries bounds the compare-and-swap loop in ApplyDelta. Each retry
// re-reads the account, so contention resolves quickly; exhaustion means
// pathological contention and the caller should back off.
const maxCASRetries = 5

type AccountStore interface {
	Create(ctx context.Context, account models.Account) error
	Get(ctx context.Context, id string) (*models.Account, error)
	Exists(ctx context.Context, id string) (bool, error)
	CompareAndSwapBalance(ctx context.Context, id string, expectedVersion int64, balance money.Money) error
}

type JournalStore interface {
	InsertGroup(ctx context.Context, entries []models.JournalEntry) error
	GetGroup(ctx context.Context, groupID string) ([]models.JournalEntry, error)
	TransitionGroup(ctx context.Context, groupID string, from, to models.PostingStatus) error
}

type AuditRecorder interface {
	Record(ctx context.Context, rec audit.Record)
}

// Service is the ledger core: double-entry journal posting, lifecycle
// transitions, and version-guarded balance mutation. Writes that must land
// together run inside the unit of work so partial state never persists.
type Service struct {
	accounts AccountStore
	journal  JournalStore
	uow      tx.UnitOfWork
	auditor  AuditRecorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(accounts AccountStore, journal JournalStore, uow tx.UnitOfWork, auditor AuditRecorder, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		journal:  journal,
		uow:      uow,
		auditor:  auditor,
		logger:   logger,
		tracer:   otel.Tracer("tally/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAccount registers a new balance holder with a non-negative opening
// balance.
func (s *Service) CreateAccount(ctx context.Context, orgID, name string, opening money.Money) (*models.Account, error) {
	account, err := models.NewAccount(orgID, name, opening)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, *account); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "account already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}

	if s.metrics != nil {
		s.metrics.AccountsCreated.Inc()
	}
	s.auditor.Record(ctx, audit.Record{
		Action:       audit.ActionAccountCreated,
		ResourceType: "account",
		ResourceID:   account.ID,
		ActorID:      auth.GetUserID(ctx),
		OrgID:        orgID,
		StateAfter: map[string]string{
			"name":    name,
			"balance": account.Balance.String(),
		},
		RequestID: metadata.GetRequestID(ctx),
	})
	return account, nil
}

// GetAccount returns the account's current balance view.
func (s *Service) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.accounts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return account, nil
}

// PostJournal validates a transaction group and persists all its legs as
// pending, or none of them. The group must balance to the cent and every
// referenced account must exist.
func (s *Service) PostJournal(ctx context.Context, group models.ProposedGroup) ([]models.JournalEntry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.PostJournal",
		trace.WithAttributes(attribute.Int("legs", len(group.Legs))))
	defer span.End()

	if err := group.Validate(); err != nil {
		s.rejectJournal(ctx, group, "validation", err)
		return nil, err
	}

	for _, leg := range group.Legs {
		exists, err := s.accounts.Exists(ctx, leg.AccountID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check account")
		}
		if !exists {
			err := dErrors.Newf(dErrors.CodeInvalidInput, "account %s does not exist", leg.AccountID)
			s.rejectJournal(ctx, group, "unknown_account", err)
			return nil, err
		}
	}

	entries := group.Entries()
	groupID := entries[0].GroupID
	if err := s.journal.InsertGroup(ctx, entries); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist journal group")
	}

	if s.metrics != nil {
		s.metrics.JournalGroupsPosted.Inc()
	}
	s.logger.InfoContext(ctx, "journal group posted",
		"group_id", groupID,
		"legs", len(entries),
	)
	s.auditor.Record(ctx, audit.Record{
		Action:       audit.ActionJournalPosted,
		ResourceType: "journal_group",
		ResourceID:   groupID,
		ActorID:      group.CreatedBy,
		StateAfter: map[string]string{
			"status": string(models.StatusPending),
			"legs":   strconv.Itoa(len(entries)),
		},
		RequestID: metadata.GetRequestID(ctx),
	})
	return entries, nil
}

func (s *Service) rejectJournal(ctx context.Context, group models.ProposedGroup, reason string, cause error) {
	if s.metrics != nil {
		s.metrics.JournalRejections.WithLabelValues(reason).Inc()
	}
	s.auditor.Record(ctx, audit.Record{
		Action:       audit.ActionJournalRejected,
		ResourceType: "journal_group",
		ActorID:      group.CreatedBy,
		ErrorMessage: cause.Error(),
		RequestID:    metadata.GetRequestID(ctx),
	})
}

// GetGroup returns every leg of a journal group.
func (s *Service) GetGroup(ctx context.Context, groupID string) ([]models.JournalEntry, error) {
	entries, err := s.journal.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "journal group not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load journal group")
	}
	return entries, nil
}

// Transition advances a journal group along pending -> committed -> settled.
// A target at or below the current status is an idempotent no-op; skipping a
// stage is a conflict. The whole group moves or none of it does.
func (s *Service) Transition(ctx context.Context, groupID string, target models.PostingStatus) ([]models.JournalEntry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Transition",
		trace.WithAttributes(attribute.String("target", string(target))))
	defer span.End()

	if !target.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", target)
	}

	entries, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	current := entries[0].Status

	switch {
	case target.Rank() <= current.Rank():
		// Replayed transition. Report current state, change nothing.
		return entries, nil
	case target.Rank() != current.Rank()+1:
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"cannot transition from %s to %s: stages cannot be skipped", current, target)
	}

	if err := s.journal.TransitionGroup(ctx, groupID, current, target); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent transition landed between read and write.
			// Re-read and let the rank rules decide again.
			return s.Transition(ctx, groupID, target)
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "journal group not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to transition journal group")
	}

	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(target)).Inc()
	}
	s.logger.InfoContext(ctx, "journal group transitioned",
		"group_id", groupID,
		"from", current,
		"to", target,
	)
	s.auditor.Record(ctx, audit.Record{
		Action:       audit.ActionJournalTransitioned,
		ResourceType: "journal_group",
		ResourceID:   groupID,
		ActorID:      auth.GetUserID(ctx),
		StateBefore:  map[string]string{"status": string(current)},
		StateAfter:   map[string]string{"status": string(target)},
		RequestID:    metadata.GetRequestID(ctx),
	})

	for i := range entries {
		entries[i].Status = target
	}
	return entries, nil
}
