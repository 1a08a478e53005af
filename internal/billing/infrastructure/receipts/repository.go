package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

var _ domain.ReceiptRepository = (*CachedRepository)(nil)

// CachedRepository reads through Cache and writes through to the store.
// Cache failures are logged and never fail the call.
type CachedRepository struct {
	store  domain.ReceiptRepository
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedRepository wraps store with cache.
func NewCachedRepository(store domain.ReceiptRepository, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{store: store, cache: cache, ttl: ttl, logger: logger}
}

type cachedReceipt struct {
	EventType   string         `json:"event_type"`
	Outcome     domain.Outcome `json:"outcome"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// Record writes the receipt to the store, then to the cache.
func (r *CachedRepository) Record(ctx context.Context, receipt domain.WebhookReceipt) error {
	if err := r.store.Record(ctx, receipt); err != nil {
		return err
	}

	data, err := json.Marshal(cachedReceipt{
		EventType:   receipt.EventType,
		Outcome:     receipt.Outcome,
		ProcessedAt: receipt.ProcessedAt,
	})
	if err != nil {
		r.logger.Warn("receipt cache encode failed", "event_id", receipt.EventID, "error", err)
		return nil
	}
	if err := r.cache.Set(ctx, receipt.EventID, data, r.ttl); err != nil {
		r.logger.Warn("receipt cache write failed", "event_id", receipt.EventID, "error", err)
	}
	return nil
}

// Find answers from the cache when possible, otherwise from the store.
func (r *CachedRepository) Find(ctx context.Context, eventID string) (*domain.WebhookReceipt, error) {
	data, err := r.cache.Get(ctx, eventID)
	switch {
	case err == nil:
		var cached cachedReceipt
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			return &domain.WebhookReceipt{
				EventID:     eventID,
				EventType:   cached.EventType,
				Outcome:     cached.Outcome,
				ProcessedAt: cached.ProcessedAt,
			}, nil
		}
	case !errors.Is(err, ErrCacheMiss):
		r.logger.Warn("receipt cache read failed", "event_id", eventID, "error", err)
	}

	return r.store.Find(ctx, eventID)
}
