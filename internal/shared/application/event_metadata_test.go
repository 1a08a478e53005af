package application

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/saffron/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	domain.BaseEvent
}

func TestNewEventMetadata(t *testing.T) {
	userID := uuid.New()

	first := NewEventMetadata(userID, "evt_1")
	second := NewEventMetadata(userID, "evt_1")

	assert.Equal(t, userID, first.UserID)
	assert.Equal(t, "evt_1", first.CausationID)
	assert.NotEqual(t, uuid.Nil, first.CorrelationID)
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)
}

func TestApplyEventMetadata(t *testing.T) {
	userID := uuid.New()
	event1 := &testEvent{BaseEvent: domain.NewBaseEvent(uuid.New(), "entitlement", "billing.entitlement.granted", time.Now())}
	event2 := &testEvent{BaseEvent: domain.NewBaseEvent(uuid.New(), "subscription", "billing.subscription.changed", time.Now())}

	metadata := NewEventMetadata(userID, "evt_42")
	ApplyEventMetadata([]domain.DomainEvent{event1, event2}, metadata)

	assert.Equal(t, metadata, event1.Metadata())
	assert.Equal(t, metadata, event2.Metadata())

	require.NotPanics(t, func() {
		ApplyEventMetadata(nil, metadata)
	})
}
