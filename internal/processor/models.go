package processor

import (
	"encoding/json"
	"fmt"
	"time"

	dErrors "tally/pkg/domain-errors"
)

// EventState tracks an external event through the gate. A key that exists in
// any state blocks re-processing; in-flight duplicates observe "processing"
// and are deduplicated just like completed ones.
type EventState string

const (
	StateProcessing EventState = "processing"
	StateApplied    EventState = "applied"
	StateFailed     EventState = "failed"
)

// ExternalEvent is a payment-processor webhook event after JSON decoding.
// Payload is kept raw; the gate does not interpret provider-specific shapes.
type ExternalEvent struct {
	ProviderID string          `json:"provider_id" validate:"required"`
	EventID    string          `json:"event_id" validate:"required"`
	EventType  string          `json:"event_type" validate:"required"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// IdempotencyKey derives the gate key. Two deliveries with the same
// provider, type, and event ID are the same event regardless of payload.
func (e ExternalEvent) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%s", e.ProviderID, e.EventType, e.EventID)
}

func (e ExternalEvent) validateIdentity() error {
	if e.ProviderID == "" || e.EventID == "" || e.EventType == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "event requires provider_id, event_type, and event_id")
	}
	return nil
}

// Outcome reports what the gate did with a delivery.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeFailed       Outcome = "failed"
)
