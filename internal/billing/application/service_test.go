package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

func TestService_GrantAndRevoke(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	entitlement, err := h.service.Grant(ctx, GrantCommand{
		UserID:   userID,
		Feature:  domain.FeaturePDFDownloads,
		Operator: "support",
		Note:     "goodwill",
	})
	require.NoError(t, err)
	assert.True(t, entitlement.IsPerpetual())

	listed, err := h.service.ListEntitlements(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	grant, ok := listed[0].Provenance.(domain.ManualGrant)
	require.True(t, ok)
	assert.Equal(t, "support", grant.Operator)

	decision, err := h.query.HasFeature(ctx, userID, domain.FeaturePDFDownloads)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	removed, err := h.service.Revoke(ctx, userID, domain.FeaturePDFDownloads, "goodwill ended")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = h.service.Revoke(ctx, userID, domain.FeaturePDFDownloads, "again")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.ElementsMatch(t, []string{
		domain.RoutingKeyEntitlementGranted,
		domain.RoutingKeyEntitlementRevoked,
	}, h.pendingRoutingKeys(t))
}

func TestService_GrantUnknownUser(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.Grant(context.Background(), GrantCommand{
		UserID:  uuid.New(),
		Feature: domain.FeatureRecipeAccess,
	})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestService_GrantRejectsPastExpiry(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	past := testNow.Add(-time.Minute)
	_, err := h.service.Grant(context.Background(), GrantCommand{
		UserID:    userID,
		Feature:   domain.FeatureRecipeAccess,
		ExpiresAt: &past,
	})
	assert.Error(t, err)
}

func TestService_SubscriptionAndHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	_, err := h.service.GetSubscription(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

	h.process(t, checkoutEvent(t, "evt_buy", checkoutOpts{userID: userID.String(), kind: "recipe_access", amount: 499}))

	sub, err := h.service.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPremium, sub.PlanID)

	entries, err := h.service.ListHistory(ctx, userID, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "evt_buy", entries[0].SourceEventID)
}
