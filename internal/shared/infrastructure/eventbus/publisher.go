package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Message is what leaves the outbox for the broker.
type Message struct {
	EventID    string
	RoutingKey string
	Payload    []byte
	OccurredAt time.Time
}

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// NoopPublisher drops messages. Used in development when no broker is reachable.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs the message but doesn't actually publish.
func (p *NoopPublisher) Publish(_ context.Context, msg Message) error {
	p.logger.Debug("noop publish",
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"size", len(msg.Payload),
	)
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}

// RecordingPublisher keeps published messages in memory.
type RecordingPublisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewRecordingPublisher creates an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// FailWith makes subsequent Publish calls return err. nil restores success.
func (p *RecordingPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records msg unless a failure is configured.
func (p *RecordingPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

// Messages returns a copy of everything published so far.
func (p *RecordingPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Close is a no-op.
func (p *RecordingPublisher) Close() error {
	return nil
}
