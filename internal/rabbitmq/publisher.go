package rabbitmq

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-gateway/internal/observability"
	"chat-gateway/internal/telemetry"
)

// Publisher publishes domain and audit events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP is disabled.
func NewPublisher(amqpURL, exchange string, log *slog.Logger) Publisher {
	if log == nil {
		log = slog.Default()
	}
	if amqpURL == "" {
		log.Info("rabbitmq disabled, using noop", "reason", "empty amqp url")
		return noopPublisher{reason: "empty amqp url", log: log}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn("rabbitmq disabled, using noop", "reason", err)
		return noopPublisher{reason: err.Error(), log: log}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq disabled, using noop", "reason", err)
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), log: log}
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		log.Warn("rabbitmq disabled, using noop", "reason", err)
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), log: log}
	}

	log.Info("rabbitmq connected", "exchange", exchange)
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, log: log}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *slog.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headerTable(observability.HeadersFromContext(ctx)),
		Body:         body,
	})
	if err != nil {
		p.log.Warn("rabbitmq publish failed", "routing_key", routingKey, "error", err)
	}
	return err
}

func headerTable(headers map[string]string) amqp.Table {
	table := amqp.Table{}
	for key, value := range headers {
		table[key] = value
	}
	return table
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
	log    *slog.Logger
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	log := p.log
	if log == nil {
		log = slog.Default()
	}
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		log.Debug("rabbitmq noop publish", "routing_key", routingKey, "event_type", envelope.EventType, "service", envelope.Service, "request_id", envelope.RequestID)
	case observability.EventEnvelope:
		log.Debug("rabbitmq noop publish", "routing_key", routingKey, "event_type", envelope.EventType, "event_name", envelope.EventName)
	default:
		log.Debug("rabbitmq noop publish", "routing_key", routingKey)
	}
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
