package domain

import "time"

// Outcome is what processing a webhook event amounted to.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
)

// WebhookReceipt marks a processor event as handled.
type WebhookReceipt struct {
	EventID     string
	EventType   string
	Outcome     Outcome
	ProcessedAt time.Time
}
