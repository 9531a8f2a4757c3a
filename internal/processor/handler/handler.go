package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tally/internal/processor"
	"tally/internal/processor/verifier"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/httputil"
)

// maxBodyBytes caps webhook payload reads. Processor events are small; a
// larger body is not a legitimate delivery.
const maxBodyBytes = 1 << 20

type Gate interface {
	Ingest(ctx context.Context, body []byte, signatureHeader string) (processor.Outcome, error)
}

// Handler exposes the webhook ingestion endpoint. It is deliberately thin:
// raw bytes in, gate outcome out. Signature verification happens inside the
// gate so the raw body reaches it untouched.
type Handler struct {
	gate   Gate
	logger *slog.Logger
}

func New(gate Gate, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/processor", h.handleWebhook)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
		return
	}
	if len(body) > maxBodyBytes {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
		return
	}

	outcome, err := h.gate.Ingest(ctx, body, r.Header.Get(verifier.SignatureHeader))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Failed outcomes are acknowledged too. The event is burned; a provider
	// retry would only be deduplicated.
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}
