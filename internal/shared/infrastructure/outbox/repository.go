package outbox

import (
	"context"
	"time"
)

// Repository defines the interface for outbox persistence.
// Save and SaveBatch join the caller's transaction when one is in ctx.
type Repository interface {
	Save(ctx context.Context, msg *Message) error
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetUnpublished returns pending messages whose retry time has come, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error

	// DeleteOld removes published messages older than the retention period.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}
