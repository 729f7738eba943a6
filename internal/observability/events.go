package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Routing keys for published domain events.
const (
	RoutingWSLifecycle         = "ws_events.conversations"
	RoutingPresence            = "presence_events"
	RoutingMessageSent         = "chat_events.message_sent"
	RoutingConversationCreated = "chat_events.conversation_created"
)

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// HeadersFromContext builds publish headers from the request id and active span in ctx.
func HeadersFromContext(ctx context.Context) map[string]string {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return BuildHeaders(RequestIDFromContext(ctx), traceID)
}

// Publisher is satisfied by the rabbitmq publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Events publishes envelopes and counts failures. A nil *Events is a no-op.
type Events struct {
	publisher Publisher
	log       *slog.Logger
}

func NewEvents(publisher Publisher, log *slog.Logger) *Events {
	if log == nil {
		log = slog.Default()
	}
	return &Events{publisher: publisher, log: log}
}

// Emit publishes one envelope under routingKey.
func (e *Events) Emit(ctx context.Context, routingKey, eventType, eventName string, payload interface{}) {
	if e == nil || e.publisher == nil {
		return
	}
	envelope := EventEnvelope{
		EventType:  eventType,
		EventName:  eventName,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}
	if err := e.publisher.Publish(ctx, routingKey, envelope); err != nil {
		IncAMQPPublishError()
		e.log.Warn("event publish failed", "routing_key", routingKey, "event", eventName, "error", err)
	}
}

// PresenceEvents publishes presence transitions as domain events.
type PresenceEvents struct {
	Events *Events
}

func (p PresenceEvents) UserOnline(userID string) {
	p.Events.Emit(context.Background(), RoutingPresence, "presence_events", "user_online", map[string]string{"user_id": userID})
}

func (p PresenceEvents) UserOffline(userID string) {
	p.Events.Emit(context.Background(), RoutingPresence, "presence_events", "user_offline", map[string]string{"user_id": userID})
}
