package domain

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionRepository stores the one subscription row per user.
type SubscriptionRepository interface {
	// Upsert inserts or replaces the row keyed by user id.
	Upsert(ctx context.Context, subscription *Subscription) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	FindByExternalID(ctx context.Context, externalSubscriptionID string) (*Subscription, error)
	FindByCustomerID(ctx context.Context, customerID string) (*Subscription, error)
}

// EntitlementRepository stores standalone feature grants.
type EntitlementRepository interface {
	// Upsert inserts or refreshes the grant keyed by (user, feature).
	Upsert(ctx context.Context, entitlement *Entitlement) error
	Find(ctx context.Context, userID uuid.UUID, feature Feature) (*Entitlement, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Entitlement, error)
	// Delete removes the listed grants and reports which ones existed.
	Delete(ctx context.Context, userID uuid.UUID, features ...Feature) ([]Feature, error)
}

// UsageRepository stores monthly usage counters.
type UsageRepository interface {
	// Increment atomically adds amount to the counter, creating the month's
	// row when absent, and returns the new value.
	Increment(ctx context.Context, userID uuid.UUID, period Period, counter Counter, amount int64) (int64, error)
	// Get returns the month's counters; an absent row reads as all zero.
	Get(ctx context.Context, userID uuid.UUID, period Period) (*UsageEntry, error)
}

// HistoryRepository stores the append-only billing log.
type HistoryRepository interface {
	// Append writes the entry unless one exists for the same source event.
	// It reports whether a row was written.
	Append(ctx context.Context, entry *HistoryEntry) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*HistoryEntry, error)
}

// ReceiptRepository remembers which processor events were handled.
type ReceiptRepository interface {
	Record(ctx context.Context, receipt WebhookReceipt) error
	Find(ctx context.Context, eventID string) (*WebhookReceipt, error)
}
