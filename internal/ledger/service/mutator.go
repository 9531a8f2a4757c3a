package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tally/internal/audit"
	"tally/internal/ledger/models"
	"tally/internal/money"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/middleware/auth"
	"tally/pkg/platform/middleware/metadata"
	"tally/pkg/platform/sentinel"
)

// DeltaRequest asks the mutator to move an account balance by a signed
// amount. The mutator derives the new balance itself; callers never compute
// or submit an absolute balance.
type DeltaRequest struct {
	AccountID string
	Delta     money.Money
	Reason    string
	Metadata  map[string]string
}

// ApplyDelta applies a signed delta to an account through a compare-and-swap
// loop. Each attempt re-reads the account, derives the new balance, and
// writes it guarded by the version it read; the offsetting journal legs go
// into the same unit of work, so a balance never moves without its paper
// trail. A delta that would take the balance negative is rejected without
// retrying.
func (s *Service) ApplyDelta(ctx context.Context, req DeltaRequest) (*models.Account, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.ApplyDelta",
		trace.WithAttributes(
			attribute.String("account_id", req.AccountID),
			attribute.Int64("delta_cents", req.Delta.Cents()),
		))
	defer span.End()

	if req.AccountID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	if req.Delta.Sign() == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "delta must be non-zero")
	}
	if err := models.ValidateMetadata(req.Metadata); err != nil {
		return nil, err
	}

	var (
		applied  *models.Account
		observed money.Money
	)
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		err := s.uow.Run(ctx, []string{req.AccountID}, func(ctx context.Context) error {
			account, err := s.accounts.Get(ctx, req.AccountID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
			}
			observed = account.Balance

			next := account.Balance.Add(req.Delta)
			if next.IsNegative() {
				return dErrors.Newf(dErrors.CodeInsufficientFunds,
					"delta %s would overdraw balance %s", req.Delta, account.Balance)
			}

			if err := s.accounts.CompareAndSwapBalance(ctx, account.ID, account.Version, next); err != nil {
				return err
			}
			if err := s.journal.InsertGroup(ctx, deltaEntries(req, account.ID, auth.GetUserID(ctx))); err != nil {
				return err
			}

			account.Balance = next
			account.Version++
			applied = account
			return nil
		})
		if err == nil {
			break
		}
		if errors.Is(err, sentinel.ErrConflict) {
			if s.metrics != nil {
				s.metrics.BalanceCASRetries.Inc()
			}
			continue
		}
		if dErrors.IsCode(err, dErrors.CodeInsufficientFunds) {
			// Recorded outside the unit of work so the rejection audit
			// survives the rollback.
			s.rejectDelta(ctx, req, observed)
			return nil, err
		}
		if dErrors.IsCode(err, dErrors.CodeNotFound) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply balance delta")
	}

	if applied == nil {
		if s.metrics != nil {
			s.metrics.BalanceCASExhausted.Inc()
		}
		s.logger.WarnContext(ctx, "balance mutation exhausted CAS retries",
			"account_id", req.AccountID,
			"retries", maxCASRetries,
		)
		return nil, dErrors.New(dErrors.CodeConflict, "account is under heavy contention, retry later")
	}

	if s.metrics != nil {
		s.metrics.BalanceMutations.Inc()
	}
	s.logger.InfoContext(ctx, "balance delta applied",
		"account_id", req.AccountID,
		"delta", req.Delta,
		"balance", applied.Balance,
	)
	s.auditor.Record(ctx, audit.Record{
		Action:       audit.ActionBalanceApplied,
		ResourceType: "account",
		ResourceID:   req.AccountID,
		ActorID:      auth.GetUserID(ctx),
		OrgID:        applied.OrgID,
		StateBefore:  map[string]string{"balance": applied.Balance.Sub(req.Delta).String()},
		StateAfter:   map[string]string{"balance": applied.Balance.String()},
		RequestID:    metadata.GetRequestID(ctx),
	})
	return applied, nil
}

func (s *Service) rejectDelta(ctx context.Context, req DeltaRequest, balance money.Money) {
	if s.metrics != nil {
		s.metrics.BalanceRejections.WithLabelValues("insufficient_funds").Inc()
	}
	s.auditor.Record(ctx, audit.Record{
		Action:       audit.ActionBalanceRejected,
		ResourceType: "account",
		ResourceID:   req.AccountID,
		ActorID:      auth.GetUserID(ctx),
		StateBefore:  map[string]string{"balance": balance.String()},
		ErrorMessage: "insufficient funds for delta " + req.Delta.String(),
		RequestID:    metadata.GetRequestID(ctx),
	})
}

// deltaEntries builds the balanced journal pair for a direct balance
// mutation. A positive delta credits the account and debits the funding
// counter-account; a negative delta does the reverse. Legs are recorded as
// committed since the balance has already moved.
func deltaEntries(req DeltaRequest, accountID, actor string) []models.JournalEntry {
	groupID := uuid.NewString()
	now := time.Now().UTC()
	amount := req.Delta.Abs()

	accountRole, fundingRole := models.RoleCredit, models.RoleDebit
	if req.Delta.IsNegative() {
		accountRole, fundingRole = models.RoleDebit, models.RoleCredit
	}

	return []models.JournalEntry{
		{
			ID:          uuid.NewString(),
			GroupID:     groupID,
			AccountID:   accountID,
			Role:        accountRole,
			Amount:      amount,
			Status:      models.StatusCommitted,
			Description: req.Reason,
			Metadata:    req.Metadata,
			CreatedBy:   actor,
			CreatedAt:   now,
		},
		{
			ID:          uuid.NewString(),
			GroupID:     groupID,
			AccountID:   FundingAccountID,
			Role:        fundingRole,
			Amount:      amount,
			Status:      models.StatusCommitted,
			Description: req.Reason,
			CreatedBy:   actor,
			CreatedAt:   now,
		},
	}
}
