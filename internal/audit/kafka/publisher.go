// Package kafka mirrors audit records to a Kafka topic for downstream SIEM
// and compliance consumers. The mirror is best-effort: the durable write is
// the store insert, and a produce failure is logged, never surfaced to the
// financial operation being audited.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"tally/internal/audit"
)

// Mirror decorates an audit.Store, producing a copy of every appended record
// to Kafka.
type Mirror struct {
	inner  audit.Store
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewMirror connects to the given brokers and wraps inner.
func NewMirror(inner audit.Store, brokers []string, topic string, logger *slog.Logger) (*Mirror, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Mirror{inner: inner, client: client, topic: topic, logger: logger}, nil
}

type wireRecord struct {
	ID           string            `json:"id"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	ActorID      string            `json:"actor_id,omitempty"`
	OrgID        string            `json:"org_id,omitempty"`
	StateBefore  map[string]string `json:"state_before,omitempty"`
	StateAfter   map[string]string `json:"state_after,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Timestamp    string            `json:"timestamp"`
}

// Append persists via the inner store, then produces a copy asynchronously.
func (m *Mirror) Append(ctx context.Context, rec audit.Record) error {
	if err := m.inner.Append(ctx, rec); err != nil {
		return err
	}

	payload, err := json.Marshal(wireRecord{
		ID:           rec.ID,
		Action:       string(rec.Action),
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		ActorID:      rec.ActorID,
		OrgID:        rec.OrgID,
		StateBefore:  rec.StateBefore,
		StateAfter:   rec.StateAfter,
		ErrorMessage: rec.ErrorMessage,
		RequestID:    rec.RequestID,
		Timestamp:    rec.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "audit mirror: marshal record", "record_id", rec.ID, "error", err)
		return nil
	}

	// Key by resource so per-resource ordering survives partitioning.
	m.client.Produce(ctx, &kgo.Record{
		Topic: m.topic,
		Key:   []byte(rec.ResourceID),
		Value: payload,
	}, func(_ *kgo.Record, err error) {
		if err != nil {
			m.logger.Error("audit mirror: produce failed", "record_id", rec.ID, "error", err)
		}
	})
	return nil
}

// Query delegates to the inner store.
func (m *Mirror) Query(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	return m.inner.Query(ctx, q)
}

// Close flushes pending produces and closes the client.
func (m *Mirror) Close(ctx context.Context) error {
	if err := m.client.Flush(ctx); err != nil {
		return err
	}
	m.client.Close()
	return nil
}
