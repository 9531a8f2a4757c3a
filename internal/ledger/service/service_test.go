package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"tally/internal/audit"
	"tally/internal/ledger/models"
	accountstore "tally/internal/ledger/store/account"
	journalstore "tally/internal/ledger/store/journal"
	"tally/internal/money"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/sentinel"
	"tally/pkg/platform/tx"
)

type recordingAuditor struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *recordingAuditor) Record(_ context.Context, rec audit.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingAuditor) byAction(action audit.Action) []audit.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Record
	for _, rec := range r.records {
		if rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}

type LedgerServiceSuite struct {
	suite.Suite
	accounts *accountstore.InMemoryStore
	journal  *journalstore.InMemoryStore
	auditor  *recordingAuditor
	svc      *Service
}

func (s *LedgerServiceSuite) SetupTest() {
	s.accounts = accountstore.NewInMemoryStore()
	s.journal = journalstore.NewInMemoryStore()
	s.auditor = &recordingAuditor{}
	s.svc = NewService(s.accounts, s.journal, tx.NewShardedUnitOfWork(), s.auditor, slog.Default())
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) mustAccount(name string, opening money.Money) *models.Account {
	account, err := s.svc.CreateAccount(context.Background(), "org-1", name, opening)
	s.Require().NoError(err)
	return account
}

func (s *LedgerServiceSuite) TestCreateAccount() {
	s.Run("creates account with opening balance", func() {
		account := s.mustAccount("operating", money.FromCents(10_000))
		s.Equal(money.FromCents(10_000), account.Balance)
		s.Equal(int64(1), account.Version)
		s.Len(s.auditor.byAction(audit.ActionAccountCreated), 1)
	})

	s.Run("rejects negative opening balance", func() {
		_, err := s.svc.CreateAccount(context.Background(), "org-1", "bad", money.FromCents(-1))
		s.Require().Error(err)
		s.True(dErrors.IsCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *LedgerServiceSuite) TestPostJournal() {
	ctx := context.Background()
	a := s.mustAccount("a", money.FromCents(0))
	b := s.mustAccount("b", money.FromCents(0))

	s.Run("balanced group persists as pending", func() {
		entries, err := s.svc.PostJournal(ctx, models.ProposedGroup{
			CreatedBy: "user-1",
			Legs: []models.ProposedLeg{
				{AccountID: a.ID, Role: models.RoleDebit, Amount: money.FromCents(2500)},
				{AccountID: b.ID, Role: models.RoleCredit, Amount: money.FromCents(2500)},
			},
		})
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		for _, e := range entries {
			s.Equal(models.StatusPending, e.Status)
			s.Equal(entries[0].GroupID, e.GroupID)
		}
		s.Len(s.auditor.byAction(audit.ActionJournalPosted), 1)
	})

	s.Run("unbalanced group is rejected and audited", func() {
		_, err := s.svc.PostJournal(ctx, models.ProposedGroup{
			Legs: []models.ProposedLeg{
				{AccountID: a.ID, Role: models.RoleDebit, Amount: money.FromCents(100)},
				{AccountID: b.ID, Role: models.RoleCredit, Amount: money.FromCents(99)},
			},
		})
		s.Require().Error(err)
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
		s.NotEmpty(s.auditor.byAction(audit.ActionJournalRejected))
	})

	s.Run("zero amount leg is rejected", func() {
		_, err := s.svc.PostJournal(ctx, models.ProposedGroup{
			Legs: []models.ProposedLeg{
				{AccountID: a.ID, Role: models.RoleDebit, Amount: money.FromCents(0)},
				{AccountID: b.ID, Role: models.RoleCredit, Amount: money.FromCents(0)},
			},
		})
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown account is rejected", func() {
		_, err := s.svc.PostJournal(ctx, models.ProposedGroup{
			Legs: []models.ProposedLeg{
				{AccountID: a.ID, Role: models.RoleDebit, Amount: money.FromCents(100)},
				{AccountID: "nope", Role: models.RoleCredit, Amount: money.FromCents(100)},
			},
		})
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("malformed metadata is rejected", func() {
		_, err := s.svc.PostJournal(ctx, models.ProposedGroup{
			Legs: []models.ProposedLeg{
				{AccountID: a.ID, Role: models.RoleDebit, Amount: money.FromCents(100),
					Metadata: map[string]string{"Not-Snake": "x"}},
				{AccountID: b.ID, Role: models.RoleCredit, Amount: money.FromCents(100)},
			},
		})
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *LedgerServiceSuite) TestTransition() {
	ctx := context.Background()
	a := s.mustAccount("a", money.FromCents(0))
	b := s.mustAccount("b", money.FromCents(0))
	entries, err := s.svc.PostJournal(ctx, models.ProposedGroup{
		Legs: []models.ProposedLeg{
			{AccountID: a.ID, Role: models.RoleDebit, Amount: money.FromCents(500)},
			{AccountID: b.ID, Role: models.RoleCredit, Amount: money.FromCents(500)},
		},
	})
	s.Require().NoError(err)
	groupID := entries[0].GroupID

	s.Run("advances one stage at a time", func() {
		out, err := s.svc.Transition(ctx, groupID, models.StatusCommitted)
		s.Require().NoError(err)
		s.Equal(models.StatusCommitted, out[0].Status)

		out, err = s.svc.Transition(ctx, groupID, models.StatusSettled)
		s.Require().NoError(err)
		s.Equal(models.StatusSettled, out[0].Status)
	})

	s.Run("replayed transition is a no-op", func() {
		out, err := s.svc.Transition(ctx, groupID, models.StatusCommitted)
		s.Require().NoError(err)
		s.Equal(models.StatusSettled, out[0].Status)

		stored, err := s.svc.GetGroup(ctx, groupID)
		s.Require().NoError(err)
		s.Equal(models.StatusSettled, stored[0].Status)
	})

	s.Run("skipping a stage is a conflict", func() {
		fresh, err := s.svc.PostJournal(ctx, models.ProposedGroup{
			Legs: []models.ProposedLeg{
				{AccountID: a.ID, Role: models.RoleDebit, Amount: money.FromCents(100)},
				{AccountID: b.ID, Role: models.RoleCredit, Amount: money.FromCents(100)},
			},
		})
		s.Require().NoError(err)

		_, err = s.svc.Transition(ctx, fresh[0].GroupID, models.StatusSettled)
		s.Require().Error(err)
		s.True(dErrors.IsCode(err, dErrors.CodeConflict))

		stored, err := s.svc.GetGroup(ctx, fresh[0].GroupID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, stored[0].Status)
	})

	s.Run("unknown group is not found", func() {
		_, err := s.svc.Transition(ctx, "missing", models.StatusCommitted)
		s.True(dErrors.IsCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown target status is rejected", func() {
		_, err := s.svc.Transition(ctx, groupID, models.PostingStatus("voided"))
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *LedgerServiceSuite) TestApplyDelta() {
	ctx := context.Background()

	s.Run("applies positive delta and records journal pair", func() {
		account := s.mustAccount("wallet", money.FromCents(1000))

		applied, err := s.svc.ApplyDelta(ctx, DeltaRequest{
			AccountID: account.ID,
			Delta:     money.FromCents(250),
			Reason:    "invoice paid",
		})
		s.Require().NoError(err)
		s.Equal(money.FromCents(1250), applied.Balance)
		s.Equal(int64(2), applied.Version)

		applieds := s.auditor.byAction(audit.ActionBalanceApplied)
		s.Require().Len(applieds, 1)
		s.Equal("$10.00", applieds[0].StateBefore["balance"])
		s.Equal("$12.50", applieds[0].StateAfter["balance"])
	})

	s.Run("rejects overdraw without changing balance", func() {
		account := s.mustAccount("thin", money.FromCents(100))

		_, err := s.svc.ApplyDelta(ctx, DeltaRequest{
			AccountID: account.ID,
			Delta:     money.FromCents(-101),
		})
		s.Require().Error(err)
		s.True(dErrors.IsCode(err, dErrors.CodeInsufficientFunds))

		reloaded, err := s.svc.GetAccount(ctx, account.ID)
		s.Require().NoError(err)
		s.Equal(money.FromCents(100), reloaded.Balance)
		s.Equal(int64(1), reloaded.Version)
		s.NotEmpty(s.auditor.byAction(audit.ActionBalanceRejected))
	})

	s.Run("draining to exactly zero is allowed", func() {
		account := s.mustAccount("drain", money.FromCents(100))

		applied, err := s.svc.ApplyDelta(ctx, DeltaRequest{
			AccountID: account.ID,
			Delta:     money.FromCents(-100),
		})
		s.Require().NoError(err)
		s.Equal(money.FromCents(0), applied.Balance)
	})

	s.Run("rejects zero delta", func() {
		account := s.mustAccount("zero", money.FromCents(100))
		_, err := s.svc.ApplyDelta(ctx, DeltaRequest{AccountID: account.ID})
		s.True(dErrors.IsCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown account is not found", func() {
		_, err := s.svc.ApplyDelta(ctx, DeltaRequest{AccountID: "missing", Delta: money.FromCents(1)})
		s.True(dErrors.IsCode(err, dErrors.CodeNotFound))
	})
}

type conflictingAccounts struct {
	*accountstore.InMemoryStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictingAccounts) CompareAndSwapBalance(ctx context.Context, id string, expectedVersion int64, balance money.Money) error {
	c.mu.Lock()
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return sentinel.ErrConflict
	}
	c.mu.Unlock()
	return c.InMemoryStore.CompareAndSwapBalance(ctx, id, expectedVersion, balance)
}

func (s *LedgerServiceSuite) TestApplyDeltaRetriesOnConflict() {
	ctx := context.Background()
	accounts := &conflictingAccounts{InMemoryStore: accountstore.NewInMemoryStore(), conflicts: 2}
	svc := NewService(accounts, journalstore.NewInMemoryStore(), tx.NewShardedUnitOfWork(), s.auditor, slog.Default())

	account, err := svc.CreateAccount(ctx, "org-1", "retry", money.FromCents(500))
	s.Require().NoError(err)

	applied, err := svc.ApplyDelta(ctx, DeltaRequest{AccountID: account.ID, Delta: money.FromCents(100)})
	s.Require().NoError(err)
	s.Equal(money.FromCents(600), applied.Balance)
}

func (s *LedgerServiceSuite) TestApplyDeltaExhaustsRetries() {
	ctx := context.Background()
	accounts := &conflictingAccounts{InMemoryStore: accountstore.NewInMemoryStore(), conflicts: maxCASRetries}
	svc := NewService(accounts, journalstore.NewInMemoryStore(), tx.NewShardedUnitOfWork(), s.auditor, slog.Default())

	account, err := svc.CreateAccount(ctx, "org-1", "hot", money.FromCents(500))
	s.Require().NoError(err)

	_, err = svc.ApplyDelta(ctx, DeltaRequest{AccountID: account.ID, Delta: money.FromCents(100)})
	s.Require().Error(err)
	s.True(dErrors.IsCode(err, dErrors.CodeConflict))

	reloaded, err := svc.GetAccount(ctx, account.ID)
	s.Require().NoError(err)
	s.Equal(money.FromCents(500), reloaded.Balance)
}

// Five concurrent writers each add $100.00 to the same account. Every write
// must succeed and the final balance must reflect all five, with no delta
// lost to a stale read.
func (s *LedgerServiceSuite) TestApplyDeltaConcurrent() {
	ctx := context.Background()
	account := s.mustAccount("contended", money.FromCents(0))

	const writers = 5
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := s.svc.ApplyDelta(ctx, DeltaRequest{
				AccountID: account.ID,
				Delta:     money.FromCents(10_000),
			})
			return err
		})
	}
	s.Require().NoError(g.Wait())

	reloaded, err := s.svc.GetAccount(ctx, account.ID)
	s.Require().NoError(err)
	s.Equal(money.FromCents(50_000), reloaded.Balance)
	s.Equal(int64(1+writers), reloaded.Version)
	s.Len(s.auditor.byAction(audit.ActionBalanceApplied), writers)
}
