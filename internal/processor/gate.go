// Package processor gates payment-processor webhook deliveries: every
// delivery is authenticated, deduplicated exactly once per idempotency key,
// and audited, before and regardless of what its business effect does.
package processor

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"tally/internal/audit"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/middleware/metadata"
	"tally/pkg/platform/tx"
)

type KeyStore interface {
	Claim(ctx context.Context, key string) (claimed bool, prior EventState, err error)
	SetState(ctx context.Context, key string, state EventState, errMessage string) error
}

type Verifier interface {
	Verify(body []byte, header string) error
}

// Applier executes the business effect of a verified, first-seen event.
type Applier interface {
	Apply(ctx context.Context, event ExternalEvent) error
}

type AuditRecorder interface {
	Record(ctx context.Context, rec audit.Record)
}

// Gate is the idempotency gate. Ingest is the only entry point; side effects
// run at most once per key no matter how many times a delivery is retried or
// raced.
type Gate struct {
	verifier Verifier
	keys     KeyStore
	applier  Applier
	uow      tx.UnitOfWork
	auditor  AuditRecorder
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

type GateOption func(*Gate)

func WithMetrics(m *Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

func NewGate(v Verifier, keys KeyStore, applier Applier, uow tx.UnitOfWork, auditor AuditRecorder, logger *slog.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		verifier: v,
		keys:     keys,
		applier:  applier,
		uow:      uow,
		auditor:  auditor,
		logger:   logger,
		tracer:   otel.Tracer("tally/processor"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ingest authenticates and processes one delivery. Signature failures and
// malformed events return an error; duplicates and post-verification
// business failures do not, so the provider stops retrying deliveries we
// have already dealt with.
func (g *Gate) Ingest(ctx context.Context, body []byte, signatureHeader string) (Outcome, error) {
	ctx, span := g.tracer.Start(ctx, "processor.Ingest")
	defer span.End()

	if err := g.verifier.Verify(body, signatureHeader); err != nil {
		if g.metrics != nil {
			g.metrics.SignatureFailures.Inc()
		}
		g.logger.WarnContext(ctx, "webhook rejected: signature verification failed",
			"client_ip", metadata.GetClientIP(ctx),
		)
		g.auditor.Record(ctx, audit.Record{
			Action:       audit.ActionEventRejected,
			ResourceType: "external_event",
			ErrorMessage: "signature verification failed",
			RequestID:    metadata.GetRequestID(ctx),
		})
		return "", err
	}

	var event ExternalEvent
	if err := json.Unmarshal(body, &event); err != nil {
		g.rejectEvent(ctx, "", "malformed event payload")
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed event payload")
	}
	if err := event.validateIdentity(); err != nil {
		g.rejectEvent(ctx, "", err.Error())
		return "", err
	}

	key := event.IdempotencyKey()

	claimed, prior, err := g.keys.Claim(ctx, key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to record idempotency key")
	}

	// A replayed key keeps exactly one audit record: the first delivery's.
	// The dedup stays observable through the metric and the log line.
	if !claimed {
		if g.metrics != nil {
			g.metrics.Events.WithLabelValues(string(OutcomeDeduplicated)).Inc()
		}
		g.logger.InfoContext(ctx, "duplicate event delivery acknowledged",
			"idempotency_key", key,
			"prior_state", prior,
		)
		return OutcomeDeduplicated, nil
	}

	if err := g.applier.Apply(ctx, event); err != nil {
		return g.fail(ctx, key, err), nil
	}
	return g.applied(ctx, key, event), nil
}

func (g *Gate) applied(ctx context.Context, key string, event ExternalEvent) Outcome {
	err := g.uow.Run(ctx, []string{key}, func(ctx context.Context) error {
		if err := g.keys.SetState(ctx, key, StateApplied, ""); err != nil {
			return err
		}
		g.auditor.Record(ctx, audit.Record{
			Action:       audit.ActionEventApplied,
			ResourceType: "external_event",
			ResourceID:   key,
			StateBefore:  map[string]string{"state": string(StateProcessing)},
			StateAfter:   map[string]string{"state": string(StateApplied)},
			RequestID:    metadata.GetRequestID(ctx),
		})
		return nil
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to mark event applied",
			"idempotency_key", key,
			"error", err,
		)
	}
	if g.metrics != nil {
		g.metrics.Events.WithLabelValues(string(OutcomeApplied)).Inc()
	}
	g.logger.InfoContext(ctx, "event applied",
		"idempotency_key", key,
		"event_type", event.EventType,
	)
	return OutcomeApplied
}

func (g *Gate) fail(ctx context.Context, key string, cause error) Outcome {
	err := g.uow.Run(ctx, []string{key}, func(ctx context.Context) error {
		if err := g.keys.SetState(ctx, key, StateFailed, cause.Error()); err != nil {
			return err
		}
		g.auditor.Record(ctx, audit.Record{
			Action:       audit.ActionEventFailed,
			ResourceType: "external_event",
			ResourceID:   key,
			StateBefore:  map[string]string{"state": string(StateProcessing)},
			StateAfter:   map[string]string{"state": string(StateFailed)},
			ErrorMessage: cause.Error(),
			RequestID:    metadata.GetRequestID(ctx),
		})
		return nil
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to mark event failed",
			"idempotency_key", key,
			"error", err,
		)
	}
	if g.metrics != nil {
		g.metrics.Events.WithLabelValues(string(OutcomeFailed)).Inc()
	}
	g.logger.ErrorContext(ctx, "event application failed",
		"idempotency_key", key,
		"error", cause,
	)
	return OutcomeFailed
}

func (g *Gate) rejectEvent(ctx context.Context, key, message string) {
	g.auditor.Record(ctx, audit.Record{
		Action:       audit.ActionEventRejected,
		ResourceType: "external_event",
		ResourceID:   key,
		ErrorMessage: message,
		RequestID:    metadata.GetRequestID(ctx),
	})
}
