package processor

import (
	"context"
	"encoding/json"

	ledgermodels "tally/internal/ledger/models"
	ledgerservice "tally/internal/ledger/service"
	"tally/internal/money"
	dErrors "tally/pkg/domain-errors"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventRefundIssued    = "refund.issued"
)

type LedgerService interface {
	ApplyDelta(ctx context.Context, req ledgerservice.DeltaRequest) (*ledgermodels.Account, error)
}

// BalanceApplier maps processor events onto ledger balance deltas. Captured
// payments credit the merchant account; issued refunds debit it. The gate
// has already guaranteed this runs at most once per event.
type BalanceApplier struct {
	ledger LedgerService
}

func NewBalanceApplier(ledger LedgerService) *BalanceApplier {
	return &BalanceApplier{ledger: ledger}
}

type balancePayload struct {
	AccountID   string `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
}

func (a *BalanceApplier) Apply(ctx context.Context, event ExternalEvent) error {
	var payload balancePayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed balance payload")
	}
	if payload.AccountID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "payload missing account_id")
	}
	if payload.AmountCents <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "payload amount_cents must be positive")
	}

	delta := money.FromCents(payload.AmountCents)
	switch event.EventType {
	case EventPaymentCaptured:
	case EventRefundIssued:
		delta = money.FromCents(-payload.AmountCents)
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "unsupported event type %q", event.EventType)
	}

	_, err := a.ledger.ApplyDelta(ctx, ledgerservice.DeltaRequest{
		AccountID: payload.AccountID,
		Delta:     delta,
		Reason:    event.EventType,
		Metadata: map[string]string{
			"provider_id": event.ProviderID,
			"event_id":    event.EventID,
		},
	})
	return err
}
