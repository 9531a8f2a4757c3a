package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"tally/internal/ledger/models"
	"tally/internal/ledger/service"
	"tally/internal/money"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/httputil"
	"tally/pkg/platform/middleware/auth"
)

type Service interface {
	CreateAccount(ctx context.Context, orgID, name string, opening money.Money) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	PostJournal(ctx context.Context, group models.ProposedGroup) ([]models.JournalEntry, error)
	GetGroup(ctx context.Context, groupID string) ([]models.JournalEntry, error)
	Transition(ctx context.Context, groupID string, target models.PostingStatus) ([]models.JournalEntry, error)
	ApplyDelta(ctx context.Context, req service.DeltaRequest) (*models.Account, error)
}

// Handler exposes the ledger and account endpoints.
type Handler struct {
	ledger   Service
	logger   *slog.Logger
	validate *validator.Validate
}

func New(ledger Service, logger *slog.Logger) *Handler {
	return &Handler{
		ledger:   ledger,
		logger:   logger,
		validate: validator.New(),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/ledger/journal", h.handlePostJournal)
	r.Get("/ledger/journal/{groupID}", h.handleGetGroup)
	r.Post("/ledger/journal/{groupID}/transition", h.handleTransition)
	r.Post("/accounts", h.handleCreateAccount)
	r.Get("/accounts/{accountID}", h.handleGetAccount)
	r.Post("/accounts/{accountID}/balance", h.handleApplyDelta)
}

type journalLegRequest struct {
	AccountID   string            `json:"account_id" validate:"required"`
	Role        string            `json:"role" validate:"required,oneof=debit credit"`
	AmountCents int64             `json:"amount_cents" validate:"required,gt=0"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

type postJournalRequest struct {
	Legs []journalLegRequest `json:"legs" validate:"required,min=2,dive"`
}

type journalEntryResponse struct {
	ID          string            `json:"id"`
	GroupID     string            `json:"group_id"`
	AccountID   string            `json:"account_id"`
	Role        string            `json:"role"`
	AmountCents int64             `json:"amount_cents"`
	Amount      string            `json:"amount"`
	Status      string            `json:"status"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func toEntryResponses(entries []models.JournalEntry) []journalEntryResponse {
	out := make([]journalEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = journalEntryResponse{
			ID:          e.ID,
			GroupID:     e.GroupID,
			AccountID:   e.AccountID,
			Role:        string(e.Role),
			AmountCents: e.Amount.Cents(),
			Amount:      e.Amount.Format(),
			Status:      string(e.Status),
			Description: e.Description,
			Metadata:    e.Metadata,
			CreatedAt:   e.CreatedAt,
		}
	}
	return out
}

type accountResponse struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	Name         string    `json:"name"`
	BalanceCents int64     `json:"balance_cents"`
	Balance      string    `json:"balance"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:           a.ID,
		OrgID:        a.OrgID,
		Name:         a.Name,
		BalanceCents: a.Balance.Cents(),
		Balance:      a.Balance.Format(),
		Version:      a.Version,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "request validation failed")
	}
	return nil
}

func (h *Handler) handlePostJournal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req postJournalRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	group := models.ProposedGroup{CreatedBy: auth.GetUserID(ctx)}
	for _, leg := range req.Legs {
		group.Legs = append(group.Legs, models.ProposedLeg{
			AccountID:   leg.AccountID,
			Role:        models.EntryRole(leg.Role),
			Amount:      money.FromCents(leg.AmountCents),
			Description: leg.Description,
			Metadata:    leg.Metadata,
		})
	}

	entries, err := h.ledger.PostJournal(ctx, group)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"group_id": entries[0].GroupID,
		"entries":  toEntryResponses(entries),
	})
}

func (h *Handler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.GetGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": toEntryResponses(entries)})
}

type transitionRequest struct {
	Target string `json:"target" validate:"required,oneof=pending committed settled"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.ledger.Transition(r.Context(), chi.URLParam(r, "groupID"), models.PostingStatus(req.Target))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": toEntryResponses(entries)})
}

type createAccountRequest struct {
	Name         string `json:"name" validate:"required"`
	OpeningCents int64  `json:"opening_cents" validate:"gte=0"`
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createAccountRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	account, err := h.ledger.CreateAccount(ctx, auth.GetOrgID(ctx), req.Name, money.FromCents(req.OpeningCents))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.GetAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

type balanceDeltaRequest struct {
	DeltaCents int64             `json:"delta_cents" validate:"required"`
	Reason     string            `json:"reason"`
	Metadata   map[string]string `json:"metadata"`
}

func (h *Handler) handleApplyDelta(w http.ResponseWriter, r *http.Request) {
	var req balanceDeltaRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	account, err := h.ledger.ApplyDelta(r.Context(), service.DeltaRequest{
		AccountID: chi.URLParam(r, "accountID"),
		Delta:     money.FromCents(req.DeltaCents),
		Reason:    req.Reason,
		Metadata:  req.Metadata,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}
