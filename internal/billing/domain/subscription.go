package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus mirrors the processor's recurring billing states.
type SubscriptionStatus string

const (
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// ParseSubscriptionStatus validates a processor status string.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	status := SubscriptionStatus(value)
	switch status {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled,
		StatusUnpaid, StatusIncomplete, StatusIncompleteExpired:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
}

// GrantsAccess reports whether plan features apply in this status.
func (s SubscriptionStatus) GrantsAccess() bool {
	return s == StatusActive || s == StatusTrialing
}

// PlanPremium is the plan recorded for one-time recipe access purchases.
const PlanPremium = "premium"

// Subscription is the single recurring-billing row kept per user.
type Subscription struct {
	UserID                 uuid.UUID
	PlanID                 string
	Status                 SubscriptionStatus
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	TrialStart             *time.Time
	TrialEnd               *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	EndedAt                *time.Time
	ExternalSubscriptionID string
	ExternalCustomerID     string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewDisplaySubscription builds the long-running premium row written for
// one-time recipe access purchases. It has no processor subscription behind it.
// The period runs for whole calendar years so leap days are counted.
func NewDisplaySubscription(userID uuid.UUID, customerID string, start time.Time, years int) *Subscription {
	start = start.UTC()
	return &Subscription{
		UserID:             userID,
		PlanID:             PlanPremium,
		Status:             StatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(years, 0, 0),
		ExternalCustomerID: customerID,
		CreatedAt:          start,
		UpdatedAt:          start,
	}
}

// Validate checks the row invariants enforced before every write.
func (s *Subscription) Validate() error {
	if s.UserID == uuid.Nil {
		return ErrMissingUser
	}
	if s.PlanID == "" {
		return ErrMissingPlan
	}
	if _, err := ParseSubscriptionStatus(string(s.Status)); err != nil {
		return err
	}
	if !s.CurrentPeriodEnd.After(s.CurrentPeriodStart) {
		return ErrInvalidPeriod
	}
	if s.Status == StatusCanceled && s.EndedAt == nil {
		return ErrMissingEndedAt
	}
	return nil
}

// Cancel moves the subscription to its terminal state.
func (s *Subscription) Cancel(at time.Time) {
	at = at.UTC()
	s.Status = StatusCanceled
	if s.EndedAt == nil {
		s.EndedAt = &at
	}
	if s.CanceledAt == nil {
		s.CanceledAt = &at
	}
	s.UpdatedAt = at
}

// IsActive reports whether the subscription currently confers its plan.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status.GrantsAccess()
}

// IsRecurring reports whether a processor subscription backs this row.
func (s *Subscription) IsRecurring() bool {
	return s != nil && s.ExternalSubscriptionID != ""
}
