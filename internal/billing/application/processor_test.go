package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
)

func TestProcessor_OneTimeRecipeAccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	result := h.process(t, checkoutEvent(t, "evt_1", checkoutOpts{
		userID: userID.String(),
		email:  "ada@example.com",
		kind:   "recipe_access",
		amount: 499,
	}))

	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	assert.Equal(t, domain.StrategyExplicit, result.Strategy)
	assert.Equal(t, userID, result.UserID)

	entitlement, err := h.entitlements.Find(ctx, userID, domain.FeatureRecipeAccess)
	require.NoError(t, err)
	assert.True(t, entitlement.IsPerpetual())
	grant, ok := entitlement.Provenance.(domain.ExplicitGrant)
	require.True(t, ok)
	assert.Equal(t, "evt_1", grant.EventID)

	sub, err := h.subscriptions.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPremium, sub.PlanID)
	assert.True(t, sub.IsActive())
	assert.False(t, sub.IsRecurring())
	assert.Equal(t, testNow.AddDate(DefaultDisplayYears, 0, 0), sub.CurrentPeriodEnd)

	assert.Equal(t, []domain.HistoryKind{domain.HistoryPaymentSucceeded}, historyKinds(t, h, userID))
	assert.ElementsMatch(t, []string{
		domain.RoutingKeyEntitlementGranted,
		domain.RoutingKeySubscriptionChanged,
	}, h.pendingRoutingKeys(t))

	require.Equal(t, 1, h.client.invoiceCount())
	assert.Equal(t, "cus_checkout", h.client.invoices[0].Customer)
	assert.Equal(t, "invoice-evt_1", h.client.invoices[0].IdempotencyKey)
	assert.Equal(t, "evt_1", h.client.invoices[0].Metadata["source_event_id"])

	decision, err := h.query.HasFeature(ctx, userID, domain.FeatureRecipeAccess)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestProcessor_OneTimePDFDownloadsHasNoDisplayRow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	h.process(t, checkoutEvent(t, "evt_pdf", checkoutOpts{
		userID: userID.String(),
		kind:   "pdf_downloads",
		amount: 299,
	}))

	_, err := h.entitlements.Find(ctx, userID, domain.FeaturePDFDownloads)
	require.NoError(t, err)

	_, err = h.subscriptions.FindByUserID(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestProcessor_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")
	evt := checkoutEvent(t, "evt_replay", checkoutOpts{userID: userID.String(), kind: "recipe_access", amount: 499})

	first := h.process(t, evt)
	second := h.process(t, evt)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, domain.OutcomeApplied, second.Outcome)
	assert.Len(t, historyKinds(t, h, userID), 1)
	assert.Equal(t, 1, h.client.invoiceCount())
}

func TestProcessor_ReplayWithoutReceiptsConverges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	deps := h.deps
	deps.Receipts = nil
	processor := NewProcessor(deps, nil)
	processor.now = h.processor.now

	evt := checkoutEvent(t, "evt_replay", checkoutOpts{userID: userID.String(), kind: "recipe_access", amount: 499, customer: "cus_replay"})
	for i := 0; i < 3; i++ {
		result, err := processor.Process(ctx, evt)
		require.NoError(t, err)
		assert.False(t, result.Duplicate)
	}
	processor.Wait()

	assert.Equal(t, 3, h.client.invoiceCallCount())
	require.Equal(t, 1, h.client.invoiceCount(), "replays reuse the first invoice")
	assert.Equal(t, "invoice-evt_replay", h.client.invoices[0].IdempotencyKey)

	entitlements, err := h.entitlements.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, entitlements, 1)
	assert.Len(t, historyKinds(t, h, userID), 1)

	sub, err := h.subscriptions.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPremium, sub.PlanID)
}

func TestProcessor_InvoiceDoesNotHoldUpProcessing(t *testing.T) {
	h := newHarness(t)
	h.client.invoiceGate = make(chan struct{})
	userID := h.addUser(t, "ada@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	result, err := h.processor.Process(ctx, checkoutEvent(t, "evt_slow_invoice", checkoutOpts{
		userID: userID.String(),
		kind:   "recipe_access",
		amount: 499,
	}))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	receipt, err := h.receipts.Find(context.Background(), "evt_slow_invoice")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, receipt.Outcome)
	assert.Zero(t, h.client.invoiceCount())

	cancel()
	close(h.client.invoiceGate)
	h.processor.Wait()

	assert.Equal(t, 1, h.client.invoiceCount(), "invoice outlives the caller's context")
}

func TestProcessor_InvoiceTimeoutIsBounded(t *testing.T) {
	h := newHarness(t)
	h.client.invoiceGate = make(chan struct{})
	defer close(h.client.invoiceGate)
	userID := h.addUser(t, "ada@example.com")

	deps := h.deps
	deps.InvoiceTimeout = 20 * time.Millisecond
	processor := NewProcessor(deps, nil)
	processor.now = h.processor.now

	_, err := processor.Process(context.Background(), checkoutEvent(t, "evt_hung_invoice", checkoutOpts{
		userID: userID.String(),
		kind:   "recipe_access",
		amount: 499,
	}))
	require.NoError(t, err)
	processor.Wait()

	assert.Equal(t, 1, h.client.invoiceCallCount())
	assert.Zero(t, h.client.invoiceCount())
}

func TestProcessor_ExplicitBeatsEmail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	owner := h.addUser(t, "owner@example.com")
	other := h.addUser(t, "other@example.com")

	result := h.process(t, checkoutEvent(t, "evt_order", checkoutOpts{
		userID: owner.String(),
		email:  "other@example.com",
		kind:   "pdf_downloads",
		amount: 299,
	}))

	assert.Equal(t, owner, result.UserID)
	assert.Equal(t, domain.StrategyExplicit, result.Strategy)

	_, err := h.entitlements.Find(ctx, other, domain.FeaturePDFDownloads)
	assert.ErrorIs(t, err, domain.ErrEntitlementNotFound)
}

func TestProcessor_PlaceholderFallsBackToEmail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	result := h.process(t, checkoutEvent(t, "evt_guest", checkoutOpts{
		userID: "guest",
		email:  "ADA@example.com",
		kind:   "recipe_access",
		amount: 499,
	}))

	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	assert.Equal(t, domain.StrategyEmailFallback, result.Strategy)
	assert.Equal(t, userID, result.UserID)

	entitlement, err := h.entitlements.Find(ctx, userID, domain.FeatureRecipeAccess)
	require.NoError(t, err)
	grant, ok := entitlement.Provenance.(domain.EmailFallbackGrant)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", grant.Email)
}

func TestProcessor_UntypedCheckoutResolvedByAmount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	result := h.process(t, checkoutEvent(t, "evt_amount", checkoutOpts{
		email:  "ada@example.com",
		amount: 299,
	}))

	assert.Equal(t, domain.StrategyAmountFallback, result.Strategy)

	entitlement, err := h.entitlements.Find(ctx, userID, domain.FeaturePDFDownloads)
	require.NoError(t, err)
	grant, ok := entitlement.Provenance.(domain.AmountFallbackGrant)
	require.True(t, ok)
	assert.Equal(t, "pdf_downloads_usd", grant.PricePointID)
	assert.Equal(t, "2026-01", grant.PriceTableVersion)
}

func TestProcessor_UntypedCheckoutWithUnknownAmountIsUnresolved(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "ada@example.com")

	result := h.process(t, checkoutEvent(t, "evt_odd", checkoutOpts{
		email:  "ada@example.com",
		amount: 1234,
	}))

	assert.Equal(t, domain.OutcomeUnresolved, result.Outcome)
	assert.Empty(t, h.pendingRoutingKeys(t))
}

func TestProcessor_UnresolvableEventIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	evt := checkoutEvent(t, "evt_nobody", checkoutOpts{
		email:  "stranger@example.com",
		kind:   "recipe_access",
		amount: 499,
	})
	result := h.process(t, evt)

	assert.Equal(t, domain.OutcomeUnresolved, result.Outcome)
	assert.Empty(t, h.pendingRoutingKeys(t))
	assert.Zero(t, h.client.invoiceCount())

	// The user signs up; the redelivery is applied rather than short-circuited.
	userID := h.addUser(t, "stranger@example.com")
	retried := h.process(t, evt)

	assert.False(t, retried.Duplicate)
	assert.Equal(t, domain.OutcomeApplied, retried.Outcome)
	_, err := h.entitlements.Find(ctx, userID, domain.FeatureRecipeAccess)
	require.NoError(t, err)
}

func TestProcessor_UnpaidCheckoutIgnored(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	result := h.process(t, checkoutEvent(t, "evt_unpaid", checkoutOpts{
		userID: userID.String(),
		kind:   "recipe_access",
		amount: 499,
		status: "unpaid",
	}))

	assert.Equal(t, domain.OutcomeIgnored, result.Outcome)
	assert.Empty(t, historyKinds(t, h, userID))
}

func TestProcessor_UnknownEventTypeIgnored(t *testing.T) {
	h := newHarness(t)

	result := h.process(t, buildEvent(t, "evt_misc", "customer.created", map[string]any{"id": "cus_1"}))

	assert.Equal(t, domain.OutcomeIgnored, result.Outcome)
	receipt, err := h.receipts.Find(context.Background(), "evt_misc")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, receipt.Outcome)
}

func TestProcessor_InvoiceFailureDoesNotAffectGrant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.client.invoiceErr = errors.New("stripe unavailable")
	userID := h.addUser(t, "ada@example.com")

	result := h.process(t, checkoutEvent(t, "evt_inv", checkoutOpts{
		userID: userID.String(),
		kind:   "recipe_access",
		amount: 499,
	}))

	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	decision, err := h.query.HasFeature(ctx, userID, domain.FeatureRecipeAccess)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestProcessor_RefundRevokesAccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	h.process(t, checkoutEvent(t, "evt_buy", checkoutOpts{userID: userID.String(), kind: "recipe_access", amount: 499}))
	h.process(t, checkoutEvent(t, "evt_buy_pdf", checkoutOpts{userID: userID.String(), kind: "pdf_downloads", amount: 299}))

	result := h.process(t, buildEvent(t, "evt_refund", stripe.EventChargeRefunded, map[string]any{
		"id":              "ch_1",
		"customer":        "cus_checkout",
		"amount":          499,
		"amount_refunded": 499,
		"currency":        "usd",
		"metadata":        map[string]string{stripe.MetadataUserID: userID.String()},
	}))
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	remaining, err := h.entitlements.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	sub, err := h.subscriptions.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, sub.Status)

	decision, err := h.query.HasFeature(ctx, userID, domain.FeatureRecipeAccess)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "no active subscription", decision.Reason)

	assert.Contains(t, historyKinds(t, h, userID), domain.HistoryRefund)
	assert.Contains(t, h.pendingRoutingKeys(t), domain.RoutingKeyEntitlementRevoked)
}

func TestProcessor_RecurringCheckoutFetchesSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")
	h.client.subscriptions["sub_pro"] = snapshot(t, subscriptionObject("sub_pro", "cus_pro", "active", "price_pro_monthly", nil))

	result := h.process(t, buildEvent(t, "evt_sub_checkout", stripe.EventCheckoutSessionCompleted, map[string]any{
		"id":             "cs_sub",
		"mode":           "subscription",
		"payment_status": "paid",
		"amount_total":   999,
		"currency":       "usd",
		"customer":       "cus_pro",
		"subscription":   "sub_pro",
		"metadata":       map[string]string{stripe.MetadataUserID: userID.String()},
	}))
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	sub, err := h.subscriptions.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "pro_monthly", sub.PlanID)
	assert.Equal(t, "sub_pro", sub.ExternalSubscriptionID)
	assert.Equal(t, "cus_pro", sub.ExternalCustomerID)

	decision, err := h.query.HasFeature(ctx, userID, domain.FeaturePDFDownloads)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Zero(t, h.client.invoiceCount())
}

func TestProcessor_RecurringCheckoutWithoutClientFails(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	deps := h.deps
	deps.Client = nil
	processor := NewProcessor(deps, nil)

	_, err := processor.Process(context.Background(), buildEvent(t, "evt_sub_checkout", stripe.EventCheckoutSessionCompleted, map[string]any{
		"id":             "cs_sub",
		"mode":           "subscription",
		"payment_status": "paid",
		"subscription":   "sub_pro",
		"metadata":       map[string]string{stripe.MetadataUserID: userID.String()},
	}))
	assert.Error(t, err)
}

func TestProcessor_SubscriptionUpdateResolvedByCustomerReference(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	h.process(t, buildEvent(t, "evt_created", stripe.EventSubscriptionCreated,
		subscriptionObject("sub_pro", "cus_pro", "active", "price_pro_monthly",
			map[string]string{stripe.MetadataUserID: userID.String()})))

	result := h.process(t, buildEvent(t, "evt_past_due", stripe.EventSubscriptionUpdated,
		subscriptionObject("sub_pro", "cus_pro", "past_due", "price_pro_monthly", nil)))

	assert.Equal(t, domain.StrategyCustomerReference, result.Strategy)

	sub, err := h.subscriptions.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPastDue, sub.Status)

	decision, err := h.query.HasFeature(ctx, userID, domain.FeaturePDFDownloads)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestProcessor_SubscriptionWithUnknownPriceIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	result := h.process(t, buildEvent(t, "evt_created", stripe.EventSubscriptionCreated,
		subscriptionObject("sub_x", "cus_x", "active", "price_unknown",
			map[string]string{stripe.MetadataUserID: userID.String()})))

	assert.Equal(t, domain.OutcomeIgnored, result.Outcome)
	_, err := h.subscriptions.FindByUserID(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestProcessor_SubscriptionWithUnknownStatusIsMalformed(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	_, err := h.processor.Process(context.Background(), buildEvent(t, "evt_bad", stripe.EventSubscriptionCreated,
		subscriptionObject("sub_pro", "cus_pro", "paused_forever", "price_pro_monthly",
			map[string]string{stripe.MetadataUserID: userID.String()})))

	assert.ErrorIs(t, err, stripe.ErrMalformedEvent)
}

func TestProcessor_SubscriptionDeleted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	h.process(t, buildEvent(t, "evt_created", stripe.EventSubscriptionCreated,
		subscriptionObject("sub_pro", "cus_pro", "active", "price_pro_monthly",
			map[string]string{stripe.MetadataUserID: userID.String()})))

	result := h.process(t, buildEvent(t, "evt_deleted", stripe.EventSubscriptionDeleted,
		subscriptionObject("sub_pro", "cus_pro", "canceled", "price_pro_monthly", nil)))
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	sub, err := h.subscriptions.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, sub.Status)
	require.NotNil(t, sub.EndedAt)
	assert.True(t, testNow.Equal(*sub.EndedAt))
}

func TestProcessor_SubscriptionDeletedLeavesLifetimeAccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	h.process(t, checkoutEvent(t, "evt_buy", checkoutOpts{userID: userID.String(), kind: "recipe_access", amount: 499}))

	result := h.process(t, buildEvent(t, "evt_deleted", stripe.EventSubscriptionDeleted,
		subscriptionObject("sub_old", "cus_checkout", "canceled", "price_pro_monthly",
			map[string]string{stripe.MetadataUserID: userID.String()})))
	assert.Equal(t, domain.OutcomeIgnored, result.Outcome)

	sub, err := h.subscriptions.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPremium, sub.PlanID)
	assert.True(t, sub.IsActive())
}

func TestProcessor_DisplayRowDoesNotReplaceRecurringSubscription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	h.process(t, buildEvent(t, "evt_created", stripe.EventSubscriptionCreated,
		subscriptionObject("sub_pro", "cus_pro", "active", "price_pro_yearly",
			map[string]string{stripe.MetadataUserID: userID.String()})))
	h.process(t, checkoutEvent(t, "evt_buy", checkoutOpts{userID: userID.String(), kind: "recipe_access", amount: 499}))

	sub, err := h.subscriptions.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "pro_yearly", sub.PlanID)

	_, err = h.entitlements.Find(ctx, userID, domain.FeatureRecipeAccess)
	require.NoError(t, err)
}

func TestProcessor_InvoiceEventsAppendHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := h.addUser(t, "ada@example.com")

	h.process(t, buildEvent(t, "evt_paid", stripe.EventInvoicePaymentSucceeded, map[string]any{
		"id":             "in_1",
		"customer":       "cus_pro",
		"customer_email": "ada@example.com",
		"amount_paid":    999,
		"amount_due":     999,
		"currency":       "usd",
	}))
	h.process(t, buildEvent(t, "evt_failed", stripe.EventInvoicePaymentFailed, map[string]any{
		"id":             "in_2",
		"customer":       "cus_pro",
		"customer_email": "ada@example.com",
		"amount_paid":    0,
		"amount_due":     999,
		"currency":       "usd",
	}))

	entries, err := h.history.ListByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "9.99", e.Amount.StringFixed(2))
		assert.Equal(t, "usd", e.Currency)
	}
	assert.ElementsMatch(t,
		[]domain.HistoryKind{domain.HistoryPaymentSucceeded, domain.HistoryPaymentFailed},
		historyKinds(t, h, userID))
}
