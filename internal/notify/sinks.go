package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/habana-express/market-engine/internal/shared"
)

// LogSink writes envelopes to the structured log. It is the fallback channel
// when no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Publish(ctx context.Context, env Envelope) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		slog.String("id", env.ID),
		slog.String("kind", string(env.Kind)),
		slog.String("subject", env.Key()),
		slog.String("summary", env.Summary))
	return nil
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditSink stores every envelope in the audit trail.
type AuditSink struct {
	Recorder AuditRecorder
}

func (s AuditSink) Name() string { return "audit" }

func (s AuditSink) Publish(ctx context.Context, env Envelope) error {
	meta := map[string]any{"envelope_id": env.ID, "summary": env.Summary}
	var payload map[string]any
	if err := json.Unmarshal(env.Payload, &payload); err == nil {
		meta["payload"] = payload
	}
	return s.Recorder.Record(ctx, shared.AuditLog{
		ActorID:  env.ActorID,
		Action:   string(env.Kind),
		Entity:   env.Entity,
		EntityID: strconv.FormatInt(env.EntityID, 10),
		Meta:     meta,
		At:       env.OccurredAt,
	})
}

// SinkFunc adapts a function into a Sink.
type SinkFunc struct {
	Label string
	Fn    func(ctx context.Context, env Envelope) error
}

func (s SinkFunc) Name() string { return s.Label }

func (s SinkFunc) Publish(ctx context.Context, env Envelope) error { return s.Fn(ctx, env) }
