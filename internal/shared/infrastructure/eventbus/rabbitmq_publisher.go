package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange billing events are published to.
const ExchangeName = "saffron.billing.events"

// ErrNotConfirmed is returned when the broker nacks a publish.
var ErrNotConfirmed = errors.New("eventbus: broker did not confirm message")

// RabbitMQPublisher publishes billing events on a confirm-mode channel.
// Publish returns only after the broker has acknowledged the message, so
// the outbox never marks an unacknowledged row as sent.
type RabbitMQPublisher struct {
	mu      sync.Mutex
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// NewRabbitMQPublisher dials url and declares the billing exchange.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &RabbitMQPublisher{url: url, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	logger.Info("rabbitmq publisher ready", "exchange", ExchangeName)
	return p, nil
}

// connect must be called with mu held or before p is shared.
func (p *RabbitMQPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(ExchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}
	p.conn, p.channel = conn, ch
	return nil
}

// Publish sends msg under its routing key and waits for the broker ack.
// The event id travels as the AMQP message id so consumers can deduplicate.
// A closed channel is reopened once before giving up.
func (p *RabbitMQPublisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		if p.conn != nil {
			_ = p.conn.Close()
		}
		if err := p.connect(); err != nil {
			return err
		}
		p.logger.Warn("rabbitmq channel reopened")
	}

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, ExchangeName, msg.RoutingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.EventID,
			Timestamp:    msg.OccurredAt,
			Type:         msg.RoutingKey,
			Body:         msg.Payload,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.RoutingKey, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", msg.EventID, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNotConfirmed, msg.EventID)
	}

	p.logger.Debug("event published", "routing_key", msg.RoutingKey, "event_id", msg.EventID, "bytes", len(msg.Payload))
	return nil
}

// Close shuts the connection, which also closes the channel.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.channel = nil, nil
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
