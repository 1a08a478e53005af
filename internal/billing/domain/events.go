package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/saffron/internal/shared/domain"
)

const (
	AggregateEntitlement  = "entitlement"
	AggregateSubscription = "subscription"

	RoutingKeyEntitlementGranted  = "billing.entitlement.granted"
	RoutingKeyEntitlementRevoked  = "billing.entitlement.revoked"
	RoutingKeySubscriptionChanged = "billing.subscription.changed"
)

// EntitlementGranted is published when a feature grant is written.
type EntitlementGranted struct {
	sharedDomain.BaseEvent
	UserID    uuid.UUID  `json:"user_id"`
	Feature   Feature    `json:"feature"`
	Strategy  Strategy   `json:"strategy"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewEntitlementGranted builds the event for e.
func NewEntitlementGranted(e *Entitlement) *EntitlementGranted {
	return &EntitlementGranted{
		BaseEvent: sharedDomain.NewBaseEvent(e.UserID, AggregateEntitlement, RoutingKeyEntitlementGranted, e.GrantedAt),
		UserID:    e.UserID,
		Feature:   e.Feature,
		Strategy:  e.Provenance.Strategy(),
		ExpiresAt: e.ExpiresAt,
	}
}

// EntitlementRevoked is published when a feature grant is removed.
type EntitlementRevoked struct {
	sharedDomain.BaseEvent
	UserID  uuid.UUID `json:"user_id"`
	Feature Feature   `json:"feature"`
	Reason  string    `json:"reason"`
}

// NewEntitlementRevoked builds the revocation event.
func NewEntitlementRevoked(userID uuid.UUID, feature Feature, reason string, at time.Time) *EntitlementRevoked {
	return &EntitlementRevoked{
		BaseEvent: sharedDomain.NewBaseEvent(userID, AggregateEntitlement, RoutingKeyEntitlementRevoked, at),
		UserID:    userID,
		Feature:   feature,
		Reason:    reason,
	}
}

// SubscriptionChanged is published after every subscription upsert.
type SubscriptionChanged struct {
	sharedDomain.BaseEvent
	UserID            uuid.UUID          `json:"user_id"`
	PlanID            string             `json:"plan_id"`
	Status            SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
}

// NewSubscriptionChanged snapshots s.
func NewSubscriptionChanged(s *Subscription, at time.Time) *SubscriptionChanged {
	return &SubscriptionChanged{
		BaseEvent:         sharedDomain.NewBaseEvent(s.UserID, AggregateSubscription, RoutingKeySubscriptionChanged, at),
		UserID:            s.UserID,
		PlanID:            s.PlanID,
		Status:            s.Status,
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
}
