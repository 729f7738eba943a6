// Package telemetry emits audit records for security-relevant chat actions.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"chat-gateway/internal/observability"
)

// Audit levels.
const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        string       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level          string `json:"level"`
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
}

// AuditEntry describes one audited action.
type AuditEntry struct {
	Level          string
	Action         string
	UserID         string
	ConversationID string
	Text           string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes entry with the request id carried by ctx. Failures are logged only.
func (e *AuditEmitter) Emit(ctx context.Context, entry AuditEntry) {
	if e == nil || e.publisher == nil {
		return
	}
	if entry.Level == "" {
		entry.Level = LevelInfo
	}

	requestID := observability.RequestIDFromContext(ctx)
	slog.Debug("audit emit", "action", entry.Action, "request_id", requestID, "user_id", entry.UserID)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        entry.UserID,
		Payload: AuditPayload{
			Level:          entry.Level,
			Action:         entry.Action,
			ConversationID: entry.ConversationID,
			Text:           entry.Text,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		slog.Warn("audit publish failed", "action", entry.Action, "error", err)
	}
}
