package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
)

const (
	kindMessage = "message"
	kindDelete  = "delete"
)

// Engine accepts payloads, retains them and fans them out.
type Engine struct {
	registry *Registry
	store    domain.RetentionStore
	clock    clockwork.Clock
	newID    func() uuid.UUID
}

func NewEngine(registry *Registry, store domain.RetentionStore, clock clockwork.Clock) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
		clock:    clock,
		newID:    uuid.New,
	}
}

// HandleInbound decodes one frame from sender and submits it. Malformed frames
// and store failures are logged and dropped; the sender's connection is unaffected.
func (e *Engine) HandleInbound(ctx context.Context, sender uuid.UUID, raw []byte) {
	ctx = correlation.WithID(ctx, correlation.NewID())

	payload, err := domain.DecodePayload(raw)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, domain.ErrMissingField) {
			reason = "missing_field"
		}
		metrics.RelaySubmissionsRejected.WithLabelValues(reason).Inc()
		slog.WarnContext(ctx, "Dropping malformed submission", "sender_id", sender.String(), "size", len(raw), "error", err)
		return
	}

	if _, err := e.Submit(ctx, sender, payload); err != nil {
		metrics.RelaySubmissionsRejected.WithLabelValues("store_error").Inc()
		slog.ErrorContext(ctx, "Failed to accept submission", "sender_id", sender.String(), "error", err)
	}
}

// Submit retains the payload and then delivers a message envelope to every open
// connection except the sender's. The record is stored before any send happens.
func (e *Engine) Submit(ctx context.Context, sender uuid.UUID, payload domain.Payload) (uuid.UUID, error) {
	rec := domain.Record{
		ID:        e.newID(),
		SenderID:  sender,
		ArrivedAt: e.clock.Now(),
		Payload:   payload,
	}

	if err := e.store.Put(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("failed to retain record %s: %w", rec.ID, err)
	}
	metrics.RelaySubmissionsTotal.Inc()
	metrics.RelayRetainedRecords.Inc()

	data, err := json.Marshal(domain.NewMessageEnvelope(rec))
	if err != nil {
		return rec.ID, fmt.Errorf("failed to marshal message envelope: %w", err)
	}

	sent := e.fanOut(ctx, kindMessage, e.registry.Targets(sender), data)
	slog.DebugContext(ctx, "Message relayed", "message_id", rec.ID.String(), "sender_id", sender.String(), "recipients", sent)

	return rec.ID, nil
}

// AnnounceDeletion tells every open connection, including the original sender,
// that id is no longer retained. It returns the number of successful sends.
func (e *Engine) AnnounceDeletion(ctx context.Context, id uuid.UUID) int {
	data, err := json.Marshal(domain.NewDeleteEnvelope(id))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal delete envelope", "message_id", id.String(), "error", err)
		return 0
	}
	return e.fanOut(ctx, kindDelete, e.registry.All(), data)
}

func (e *Engine) fanOut(ctx context.Context, kind string, targets iter.Seq[Transport], data []byte) int {
	start := e.clock.Now()
	defer func() {
		metrics.RelayFanoutDuration.WithLabelValues(kind).Observe(e.clock.Since(start).Seconds())
	}()

	sent := 0
	for t := range targets {
		if err := t.Send(data); err != nil {
			metrics.RelayFanoutSends.WithLabelValues(kind, "failed").Inc()
			slog.DebugContext(ctx, "Skipping target", "kind", kind, "error", err)
			continue
		}
		metrics.RelayFanoutSends.WithLabelValues(kind, "ok").Inc()
		sent++
	}
	return sent
}
