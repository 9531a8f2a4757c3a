package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"tally/internal/audit"
	auditmemory "tally/internal/audit/store/memory"
	"tally/internal/ledger/models"
	"tally/internal/ledger/service"
	accountstore "tally/internal/ledger/store/account"
	journalstore "tally/internal/ledger/store/journal"
	"tally/internal/money"
	"tally/pkg/platform/tx"
	"tally/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	svc    *service.Service
	router *chi.Mux
}

func (s *HandlerSuite) SetupTest() {
	sink := audit.NewSink(auditmemory.NewInMemoryStore(), audit.NewRetryQueue(0), slog.Default())
	s.svc = service.NewService(
		accountstore.NewInMemoryStore(),
		journalstore.NewInMemoryStore(),
		tx.NewShardedUnitOfWork(),
		sink,
		slog.Default(),
	)
	s.router = chi.NewRouter()
	New(s.svc, slog.Default()).Register(s.router)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) createAccount(opening int64) string {
	account, err := s.svc.CreateAccount(context.Background(), "org-1", "acct", money.FromCents(opening))
	s.Require().NoError(err)
	return account.ID
}

func (s *HandlerSuite) TestCreateAccount() {
	s.Run("valid request returns 201", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts",
			map[string]any{"name": "operating", "opening_cents": 500})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertJSONContains(s.T(), rr, "balance", "$5.00")
	})

	s.Run("missing name is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts",
			map[string]any{"opening_cents": 500})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("malformed body is rejected", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/accounts", `{"name":`)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestApplyDelta() {
	accountID := s.createAccount(1000)

	s.Run("positive delta returns the new balance", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts/"+accountID+"/balance",
			map[string]any{"delta_cents": 250})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "balance", "$12.50")
	})

	s.Run("overdraw maps to 409 insufficient_funds", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts/"+accountID+"/balance",
			map[string]any{"delta_cents": -100_000})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "insufficient_funds")
	})

	s.Run("zero delta fails validation", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts/"+accountID+"/balance",
			map[string]any{"delta_cents": 0})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("unknown account maps to 404", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/accounts/missing/balance",
			map[string]any{"delta_cents": 100})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestPostJournal() {
	a := s.createAccount(0)
	b := s.createAccount(0)

	s.Run("single leg fails request validation", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/ledger/journal", map[string]any{
			"legs": []map[string]any{
				{"account_id": a, "role": "debit", "amount_cents": 100},
			},
		})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("invalid role fails request validation", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/ledger/journal", map[string]any{
			"legs": []map[string]any{
				{"account_id": a, "role": "withdraw", "amount_cents": 100},
				{"account_id": b, "role": "credit", "amount_cents": 100},
			},
		})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("balanced group returns 201 with group id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/ledger/journal", map[string]any{
			"legs": []map[string]any{
				{"account_id": a, "role": "debit", "amount_cents": 100},
				{"account_id": b, "role": "credit", "amount_cents": 100},
			},
		})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.NotEmpty((*body)["group_id"])
	})
}

func (s *HandlerSuite) TestTransition() {
	a := s.createAccount(0)
	b := s.createAccount(0)
	entries, err := s.svc.PostJournal(context.Background(), postedGroup(a, b))
	s.Require().NoError(err)
	groupID := entries[0].GroupID

	s.Run("invalid target fails validation", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/ledger/journal/"+groupID+"/transition", map[string]any{"target": "voided"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("skipping a stage maps to 409", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/ledger/journal/"+groupID+"/transition", map[string]any{"target": "settled"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("valid transition returns the updated group", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/ledger/journal/"+groupID+"/transition", map[string]any{"target": "committed"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("unknown group maps to 404", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/ledger/journal/missing/transition", map[string]any{"target": "committed"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func postedGroup(a, b string) models.ProposedGroup {
	return models.ProposedGroup{
		Legs: []models.ProposedLeg{
			{AccountID: a, Role: models.RoleDebit, Amount: money.FromCents(100)},
			{AccountID: b, Role: models.RoleCredit, Amount: money.FromCents(100)},
		},
	}
}
