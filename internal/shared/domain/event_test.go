package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/saffron/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEvent(t *testing.T) {
	aggregateID := uuid.New()
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	event := domain.NewBaseEvent(aggregateID, "entitlement", "billing.entitlement.granted", occurred)

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, aggregateID, event.AggregateID())
	assert.Equal(t, "entitlement", event.AggregateType())
	assert.Equal(t, "billing.entitlement.granted", event.RoutingKey())
	assert.Equal(t, occurred.UTC(), event.OccurredAt())
	assert.Equal(t, time.UTC, event.OccurredAt().Location())
}

func TestNewBaseEvent_ZeroTimeDefaultsToNow(t *testing.T) {
	before := time.Now().UTC()
	event := domain.NewBaseEvent(uuid.New(), "subscription", "billing.subscription.changed", time.Time{})
	after := time.Now().UTC()

	assert.False(t, event.OccurredAt().Before(before))
	assert.False(t, event.OccurredAt().After(after))
}

func TestBaseEvent_WithMetadata(t *testing.T) {
	userID := uuid.New()
	correlationID := uuid.New()

	event := domain.NewBaseEvent(uuid.New(), "entitlement", "billing.entitlement.revoked", time.Now())
	event.SetMetadata(domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   "evt_123",
		UserID:        userID,
	})

	metadata := event.Metadata()
	assert.Equal(t, correlationID, metadata.CorrelationID)
	assert.Equal(t, "evt_123", metadata.CausationID)
	assert.Equal(t, userID, metadata.UserID)
}
