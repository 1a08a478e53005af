package receipts

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

type countingStore struct {
	receipts map[string]domain.WebhookReceipt
	finds    int
	err      error
}

func newCountingStore() *countingStore {
	return &countingStore{receipts: make(map[string]domain.WebhookReceipt)}
}

func (s *countingStore) Record(_ context.Context, r domain.WebhookReceipt) error {
	if s.err != nil {
		return s.err
	}
	s.receipts[r.EventID] = r
	return nil
}

func (s *countingStore) Find(_ context.Context, id string) (*domain.WebhookReceipt, error) {
	s.finds++
	r, ok := s.receipts[id]
	if !ok {
		return nil, domain.ErrReceiptNotFound
	}
	return &r, nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("redis down")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis down")
}

func TestCachedRepository_ReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	repo := NewCachedRepository(store, NewMemoryCache(), time.Hour, nil)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Record(ctx, domain.WebhookReceipt{EventID: "evt_1", EventType: "charge.refunded", Outcome: domain.OutcomeApplied, ProcessedAt: at}))

	got, err := repo.Find(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, got.Outcome)
	assert.True(t, at.Equal(got.ProcessedAt))
	assert.Equal(t, 0, store.finds, "served from cache")

	_, err = repo.Find(ctx, "evt_2")
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
	assert.Equal(t, 1, store.finds)
}

func TestCachedRepository_CacheFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	repo := NewCachedRepository(store, brokenCache{}, time.Hour, nil)

	require.NoError(t, repo.Record(ctx, domain.WebhookReceipt{EventID: "evt_1", Outcome: domain.OutcomeIgnored, ProcessedAt: time.Now()}))

	got, err := repo.Find(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, got.Outcome)
	assert.Equal(t, 1, store.finds)
}

func TestCachedRepository_StoreFailureIsReturned(t *testing.T) {
	store := newCountingStore()
	store.err = errors.New("disk full")
	cache := NewMemoryCache()
	repo := NewCachedRepository(store, cache, time.Hour, nil)

	err := repo.Record(context.Background(), domain.WebhookReceipt{EventID: "evt_1"})
	assert.Error(t, err)

	_, err = cache.Get(context.Background(), "evt_1")
	assert.ErrorIs(t, err, ErrCacheMiss, "nothing cached for a failed write")
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCachedRepository_UnencodableReceiptIsLogged(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	store := newCountingStore()
	cache := NewMemoryCache()
	repo := NewCachedRepository(store, cache, time.Hour, slog.New(slog.NewJSONHandler(&logs, nil)))

	// Years past 9999 have no RFC 3339 form.
	at := time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Record(ctx, domain.WebhookReceipt{EventID: "evt_far", Outcome: domain.OutcomeApplied, ProcessedAt: at}))

	assert.Contains(t, store.receipts, "evt_far")
	_, err := cache.Get(ctx, "evt_far")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Contains(t, logs.String(), `"level":"WARN"`)
	assert.Contains(t, logs.String(), "receipt cache encode failed")
	assert.Contains(t, logs.String(), `"event_id":"evt_far"`)
}
