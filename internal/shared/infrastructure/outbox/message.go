package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/shared/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/eventbus"
)

// Message is one row of the outbox table. Field order matches the
// column order of the repository SELECTs.
type Message struct {
	ID               int64
	EventID          uuid.UUID
	AggregateType    string
	AggregateID      uuid.UUID
	EventType        string
	RoutingKey       string
	Payload          json.RawMessage
	Metadata         json.RawMessage
	CreatedAt        time.Time
	PublishedAt      *time.Time
	NextRetryAt      *time.Time
	RetryCount       int
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// State is a message's position in the relay lifecycle.
type State string

const (
	StatePending   State = "pending"
	StatePublished State = "published"
	StateDead      State = "dead"
)

// NewMessages stages events for the relay. The routing key doubles as the
// event type; billing consumers bind on it.
func NewMessages(events []domain.DomainEvent) ([]*Message, error) {
	msgs := make([]*Message, 0, len(events))
	for _, event := range events {
		msg, err := NewMessage(event)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// NewMessage serialises a single event and its tracing metadata.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	key := event.RoutingKey()
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("outbox: encode %s: %w", key, err)
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, fmt.Errorf("outbox: encode %s metadata: %w", key, err)
	}
	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     key,
		RoutingKey:    key,
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

func (m *Message) State() State {
	switch {
	case m.DeadLetteredAt != nil:
		return StateDead
	case m.PublishedAt != nil:
		return StatePublished
	default:
		return StatePending
	}
}

// Exhausted reports whether failing the current attempt should
// dead-letter the message. maxRetries <= 0 allows a single attempt.
func (m *Message) Exhausted(maxRetries int) bool {
	return maxRetries <= 0 || m.RetryCount+1 >= maxRetries
}

// EventMetadata decodes the stored tracing metadata. Undecodable metadata
// yields the zero value; it only feeds log fields.
func (m *Message) EventMetadata() domain.EventMetadata {
	var md domain.EventMetadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &md)
	}
	return md
}

// BusMessage is the broker view of m.
func (m *Message) BusMessage() eventbus.Message {
	return eventbus.Message{
		EventID:    m.EventID.String(),
		RoutingKey: m.RoutingKey,
		Payload:    m.Payload,
		OccurredAt: m.CreatedAt,
	}
}
