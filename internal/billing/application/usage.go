package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

// UsageRecorder counts metered actions. It never refuses a write; quota
// enforcement is the caller's job via QueryService.CheckQuota.
type UsageRecorder struct {
	usage  domain.UsageRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewUsageRecorder creates a usage recorder.
func NewUsageRecorder(usage domain.UsageRepository, logger *slog.Logger) *UsageRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageRecorder{usage: usage, logger: logger, now: time.Now}
}

// Increment adds one to counter for the current month.
func (r *UsageRecorder) Increment(ctx context.Context, userID uuid.UUID, counter domain.Counter) (int64, error) {
	return r.IncrementBy(ctx, userID, counter, 1)
}

// IncrementBy adds amount to counter for the current month and returns the new total.
func (r *UsageRecorder) IncrementBy(ctx context.Context, userID uuid.UUID, counter domain.Counter, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}
	if _, err := domain.ParseCounter(string(counter)); err != nil {
		return 0, err
	}

	period := domain.PeriodOf(r.now())
	total, err := r.usage.Increment(ctx, userID, period, counter, amount)
	if err != nil {
		return 0, err
	}
	r.logger.Debug("usage recorded",
		"user_id", userID,
		"counter", counter,
		"period", period,
		"total", total,
	)
	return total, nil
}

// Usage returns the counters for period.
func (r *UsageRecorder) Usage(ctx context.Context, userID uuid.UUID, period domain.Period) (*domain.UsageEntry, error) {
	return r.usage.Get(ctx, userID, period)
}
