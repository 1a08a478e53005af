package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

var errStoreDown = errors.New("store unavailable")

type failingEntitlements struct {
	domain.EntitlementRepository
}

func (failingEntitlements) Find(context.Context, uuid.UUID, domain.Feature) (*domain.Entitlement, error) {
	return nil, errStoreDown
}

type failingUsage struct {
	domain.UsageRepository
}

func (failingUsage) Get(context.Context, uuid.UUID, domain.Period) (*domain.UsageEntry, error) {
	return nil, errStoreDown
}

func TestQueryService_HasFeature_NoSubscription(t *testing.T) {
	h := newHarness(t)

	decision, err := h.query.HasFeature(context.Background(), uuid.New(), domain.FeatureRecipeAccess)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "no active subscription", decision.Reason)
}

func TestQueryService_HasFeature_NotInPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := uuid.New()

	require.NoError(t, h.subscriptions.Upsert(ctx, domain.NewDisplaySubscription(userID, "", testNow, DefaultDisplayYears)))

	decision, err := h.query.HasFeature(ctx, userID, domain.FeaturePDFDownloads)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "not included in plan premium", decision.Reason)

	decision, err = h.query.HasFeature(ctx, userID, domain.FeatureRecipeAccess)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestQueryService_HasFeature_ExpiredEntitlement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := uuid.New()

	expired := testNow.Add(-time.Hour)
	entitlement, err := domain.NewEntitlement(userID, domain.FeaturePDFDownloads, testNow.Add(-48*time.Hour), &expired, domain.ManualGrant{Operator: "ops"})
	require.NoError(t, err)
	require.NoError(t, h.entitlements.Upsert(ctx, entitlement))

	decision, err := h.query.HasFeature(ctx, userID, domain.FeaturePDFDownloads)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestQueryService_HasFeature_FailsClosed(t *testing.T) {
	h := newHarness(t)
	h.query.entitlements = failingEntitlements{}

	decision, err := h.query.HasFeature(context.Background(), uuid.New(), domain.FeatureRecipeAccess)
	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.Reason)
}

func TestQueryService_CheckQuota_Boundary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := uuid.New()

	for i := 0; i < 4; i++ {
		_, err := h.recorder.Increment(ctx, userID, domain.CounterPDFExports)
		require.NoError(t, err)
	}

	quota, err := h.query.CheckQuota(ctx, userID, "pdfExportsPerMonth")
	require.NoError(t, err)
	assert.True(t, quota.Allowed)
	assert.Equal(t, "free", quota.PlanID)
	require.NotNil(t, quota.Remaining)
	assert.Equal(t, int64(1), *quota.Remaining)

	_, err = h.recorder.Increment(ctx, userID, domain.CounterPDFExports)
	require.NoError(t, err)

	quota, err = h.query.CheckQuota(ctx, userID, "pdfExportsPerMonth")
	require.NoError(t, err)
	assert.False(t, quota.Allowed)
	assert.Equal(t, int64(5), quota.Used)
	require.NotNil(t, quota.Limit)
	assert.Equal(t, int64(5), *quota.Limit)
	assert.Equal(t, int64(0), *quota.Remaining)
	assert.NotEmpty(t, quota.Reason)

	// Recording is never refused.
	total, err := h.recorder.Increment(ctx, userID, domain.CounterPDFExports)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	quota, err = h.query.CheckQuota(ctx, userID, "pdfExportsPerMonth")
	require.NoError(t, err)
	assert.False(t, quota.Allowed)
	assert.Equal(t, int64(6), quota.Used)
	assert.Equal(t, int64(0), *quota.Remaining)
}

func TestQueryService_CheckQuota_MonthRollover(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := uuid.New()

	_, err := h.recorder.IncrementBy(ctx, userID, domain.CounterCollectionsCreated, 3)
	require.NoError(t, err)

	quota, err := h.query.CheckQuota(ctx, userID, "collectionsCreatedPerMonth")
	require.NoError(t, err)
	assert.False(t, quota.Allowed)
	assert.Equal(t, domain.Period("2026-03"), quota.Period)

	nextMonth := time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC)
	h.query.now = func() time.Time { return nextMonth }

	quota, err = h.query.CheckQuota(ctx, userID, "collectionsCreatedPerMonth")
	require.NoError(t, err)
	assert.True(t, quota.Allowed)
	assert.Equal(t, int64(0), quota.Used)
	assert.Equal(t, int64(3), *quota.Remaining)
	assert.Equal(t, domain.Period("2026-04"), quota.Period)
}

func TestQueryService_CheckQuota_Unlimited(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := uuid.New()

	sub := &domain.Subscription{
		UserID:                 userID,
		PlanID:                 "pro_monthly",
		Status:                 domain.StatusTrialing,
		CurrentPeriodStart:     testNow,
		CurrentPeriodEnd:       testNow.AddDate(0, 1, 0),
		ExternalSubscriptionID: "sub_pro",
		CreatedAt:              testNow,
		UpdatedAt:              testNow,
	}
	require.NoError(t, h.subscriptions.Upsert(ctx, sub))
	_, err := h.recorder.IncrementBy(ctx, userID, domain.CounterRecipeViews, 1000)
	require.NoError(t, err)

	quota, err := h.query.CheckQuota(ctx, userID, "recipeViewsPerMonth")
	require.NoError(t, err)
	assert.True(t, quota.Allowed)
	assert.Nil(t, quota.Limit)
	assert.Nil(t, quota.Remaining)
	assert.Equal(t, int64(1000), quota.Used)
	assert.Equal(t, "pro_monthly", quota.PlanID)
}

func TestQueryService_CheckQuota_CanceledSubscriptionUsesDefaultPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := uuid.New()

	sub := domain.NewDisplaySubscription(userID, "", testNow, DefaultDisplayYears)
	sub.Cancel(testNow)
	require.NoError(t, h.subscriptions.Upsert(ctx, sub))

	quota, err := h.query.CheckQuota(ctx, userID, "recipeViewsPerMonth")
	require.NoError(t, err)
	assert.Equal(t, "free", quota.PlanID)
	require.NotNil(t, quota.Limit)
	assert.Equal(t, int64(30), *quota.Limit)
}

func TestQueryService_CheckQuota_UnknownLimit(t *testing.T) {
	h := newHarness(t)

	quota, err := h.query.CheckQuota(context.Background(), uuid.New(), "spoonsPerMonth")
	assert.ErrorIs(t, err, domain.ErrUnknownLimit)
	assert.False(t, quota.Allowed)
}

func TestQueryService_CheckQuota_FailsClosed(t *testing.T) {
	h := newHarness(t)
	h.query.usage = failingUsage{}

	quota, err := h.query.CheckQuota(context.Background(), uuid.New(), "pdfExportsPerMonth")
	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, quota.Allowed)
	assert.Equal(t, "usage lookup failed", quota.Reason)
}
