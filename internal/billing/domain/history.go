package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HistoryKind classifies a billing history entry.
type HistoryKind string

const (
	HistoryPaymentSucceeded HistoryKind = "payment_succeeded"
	HistoryPaymentFailed    HistoryKind = "payment_failed"
	HistoryRefund           HistoryKind = "refund"
)

// HistoryEntry is an append-only audit record of a monetary event. It is
// never consulted by access decisions.
type HistoryEntry struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Kind              HistoryKind
	Amount            decimal.Decimal
	Currency          string
	ExternalReference string
	SourceEventID     string
	OccurredAt        time.Time
}

// NewHistoryEntry records amount (in minor units) against the event that caused it.
func NewHistoryEntry(userID uuid.UUID, kind HistoryKind, amount Money, externalRef, sourceEventID string, occurredAt time.Time) *HistoryEntry {
	return &HistoryEntry{
		ID:                uuid.New(),
		UserID:            userID,
		Kind:              kind,
		Amount:            amount.Decimal(),
		Currency:          amount.Currency,
		ExternalReference: externalRef,
		SourceEventID:     sourceEventID,
		OccurredAt:        occurredAt.UTC(),
	}
}
