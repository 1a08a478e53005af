package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	"github.com/felixgeelhaar/saffron/internal/billing/application"
	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/security"
)

type userInput struct {
	UserID string `json:"user_id,omitempty"`
}

type billingGrantInput struct {
	UserID    string `json:"user_id,omitempty"`
	Feature   string `json:"feature" jsonschema:"required"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Note      string `json:"note,omitempty"`
}

type billingRevokeInput struct {
	UserID  string `json:"user_id,omitempty"`
	Feature string `json:"feature" jsonschema:"required"`
	Reason  string `json:"reason,omitempty"`
}

type featureInput struct {
	UserID  string `json:"user_id,omitempty"`
	Feature string `json:"feature" jsonschema:"required"`
}

type quotaInput struct {
	UserID string `json:"user_id,omitempty"`
	Limit  string `json:"limit" jsonschema:"required"`
}

type usageInput struct {
	UserID string `json:"user_id,omitempty"`
	Period string `json:"period,omitempty"`
}

type recordUsageInput struct {
	UserID  string `json:"user_id,omitempty"`
	Counter string `json:"counter" jsonschema:"required"`
	Amount  int64  `json:"amount,omitempty"`
}

type historyInput struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type billingWebhookInput struct {
	EventPath string `json:"event_path,omitempty"`
	EventJSON string `json:"event_json,omitempty"`
}

type subscriptionView struct {
	UserID                 uuid.UUID  `json:"user_id"`
	PlanID                 string     `json:"plan_id"`
	Status                 string     `json:"status"`
	Active                 bool       `json:"active"`
	CurrentPeriodStart     time.Time  `json:"current_period_start"`
	CurrentPeriodEnd       time.Time  `json:"current_period_end"`
	TrialEnd               *time.Time `json:"trial_end,omitempty"`
	CancelAtPeriodEnd      bool       `json:"cancel_at_period_end"`
	CanceledAt             *time.Time `json:"canceled_at,omitempty"`
	ExternalSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	ExternalCustomerID     string     `json:"stripe_customer_id,omitempty"`
}

type entitlementView struct {
	Feature       string     `json:"feature"`
	GrantedAt     time.Time  `json:"granted_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Strategy      string     `json:"strategy"`
	SourceEventID string     `json:"source_event_id,omitempty"`
}

type historyView struct {
	Kind              string    `json:"kind"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	ExternalReference string    `json:"external_reference,omitempty"`
	SourceEventID     string    `json:"source_event_id,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// featureResult keeps the denying decision visible when the lookup failed.
type featureResult struct {
	application.Decision
	Error string `json:"error,omitempty"`
}

type quotaResult struct {
	application.Quota
	Error string `json:"error,omitempty"`
}

func registerBillingTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("billing.status").
		Description("Get a user's subscription status").
		Handler(func(ctx context.Context, input userInput) (any, error) {
			return subscriptionStatus(ctx, app, input)
		})

	srv.Tool("billing.entitlements").
		Description("List a user's standalone entitlements").
		Handler(func(ctx context.Context, input userInput) ([]entitlementView, error) {
			return listEntitlements(ctx, app, input)
		})

	srv.Tool("billing.grant").
		Description("Grant a feature to a user, optionally until expires_at (RFC 3339)").
		Handler(func(ctx context.Context, input billingGrantInput) (entitlementView, error) {
			return grantEntitlement(ctx, app, input)
		})

	srv.Tool("billing.revoke").
		Description("Revoke a standalone feature grant").
		Handler(func(ctx context.Context, input billingRevokeInput) (map[string]any, error) {
			return revokeEntitlement(ctx, app, input)
		})

	srv.Tool("billing.has_feature").
		Description("Check whether a user may use a feature; denies when state cannot be read").
		Handler(func(ctx context.Context, input featureInput) (featureResult, error) {
			return hasFeature(ctx, app, input)
		})

	srv.Tool("billing.check_quota").
		Description("Check a monthly limit such as recipeViewsPerMonth").
		Handler(func(ctx context.Context, input quotaInput) (quotaResult, error) {
			return checkQuota(ctx, app, input)
		})

	srv.Tool("billing.usage").
		Description("Get a user's usage counters for a month (YYYY-MM, default current)").
		Handler(func(ctx context.Context, input usageInput) (map[string]any, error) {
			return usage(ctx, app, input)
		})

	srv.Tool("billing.record_usage").
		Description("Increment a usage counter for the current month").
		Handler(func(ctx context.Context, input recordUsageInput) (map[string]any, error) {
			return recordUsage(ctx, app, input)
		})

	srv.Tool("billing.history").
		Description("List a user's billing history, newest first").
		Handler(func(ctx context.Context, input historyInput) ([]historyView, error) {
			return history(ctx, app, input)
		})

	srv.Tool("billing.webhook").
		Description("Replay a webhook event through the processor without signature verification").
		Handler(func(ctx context.Context, input billingWebhookInput) (map[string]any, error) {
			return replayWebhook(ctx, app, input)
		})

	return nil
}

func subscriptionStatus(ctx context.Context, app *cli.App, input userInput) (any, error) {
	if app == nil || app.BillingService == nil {
		return nil, errors.New("billing status requires database connection")
	}
	userID, err := targetUser(app, input.UserID)
	if err != nil {
		return nil, err
	}
	sub, err := app.BillingService.GetSubscription(ctx, userID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return map[string]any{"user_id": userID, "subscription": nil}, nil
	}
	if err != nil {
		return nil, err
	}
	return subscriptionView{
		UserID:                 sub.UserID,
		PlanID:                 sub.PlanID,
		Status:                 string(sub.Status),
		Active:                 sub.IsActive(),
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		TrialEnd:               sub.TrialEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CanceledAt:             sub.CanceledAt,
		ExternalSubscriptionID: sub.ExternalSubscriptionID,
		ExternalCustomerID:     sub.ExternalCustomerID,
	}, nil
}

func listEntitlements(ctx context.Context, app *cli.App, input userInput) ([]entitlementView, error) {
	if app == nil || app.BillingService == nil {
		return nil, errors.New("entitlements require database connection")
	}
	userID, err := targetUser(app, input.UserID)
	if err != nil {
		return nil, err
	}
	ents, err := app.BillingService.ListEntitlements(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]entitlementView, 0, len(ents))
	for _, e := range ents {
		views = append(views, toEntitlementView(e))
	}
	return views, nil
}

func grantEntitlement(ctx context.Context, app *cli.App, input billingGrantInput) (entitlementView, error) {
	if app == nil || app.BillingService == nil {
		return entitlementView{}, errors.New("entitlement updates require database connection")
	}
	feature, err := domain.ParseFeature(input.Feature)
	if err != nil {
		return entitlementView{}, errors.New("feature is required")
	}
	userID, err := targetUser(app, input.UserID)
	if err != nil {
		return entitlementView{}, err
	}
	expiresAt, err := parseOptionalTime(input.ExpiresAt)
	if err != nil {
		return entitlementView{}, err
	}

	ent, err := app.BillingService.Grant(ctx, application.GrantCommand{
		UserID:    userID,
		Feature:   feature,
		ExpiresAt: expiresAt,
		Operator:  "mcp",
		Note:      input.Note,
	})
	if err != nil {
		return entitlementView{}, err
	}
	return toEntitlementView(ent), nil
}

func revokeEntitlement(ctx context.Context, app *cli.App, input billingRevokeInput) (map[string]any, error) {
	if app == nil || app.BillingService == nil {
		return nil, errors.New("entitlement updates require database connection")
	}
	feature, err := domain.ParseFeature(input.Feature)
	if err != nil {
		return nil, errors.New("feature is required")
	}
	userID, err := targetUser(app, input.UserID)
	if err != nil {
		return nil, err
	}
	if input.Reason == "" {
		input.Reason = "manual"
	}

	removed, err := app.BillingService.Revoke(ctx, userID, feature, input.Reason)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user_id": userID, "feature": feature, "revoked": removed}, nil
}

func hasFeature(ctx context.Context, app *cli.App, input featureInput) (featureResult, error) {
	if app == nil || app.QueryService == nil {
		return featureResult{}, errors.New("entitlement checks require database connection")
	}
	feature, err := domain.ParseFeature(input.Feature)
	if err != nil {
		return featureResult{}, errors.New("feature is required")
	}
	userID, err := targetUser(app, input.UserID)
	if err != nil {
		return featureResult{}, err
	}

	decision, err := app.QueryService.HasFeature(ctx, userID, feature)
	result := featureResult{Decision: decision}
	if err != nil {
		result.Error = err.Error()
	}
	return result, nil
}

func checkQuota(ctx context.Context, app *cli.App, input quotaInput) (quotaResult, error) {
	if app == nil || app.QueryService == nil {
		return quotaResult{}, errors.New("entitlement checks require database connection")
	}
	if input.Limit == "" {
		return quotaResult{}, errors.New("limit is required")
	}
	userID, err := targetUser(app, input.UserID)
	if err != nil {
		return quotaResult{}, err
	}

	quota, err := app.QueryService.CheckQuota(ctx, userID, input.Limit)
	result := quotaResult{Quota: quota}
	if err != nil {
		result.Error = err.Error()
	}
	return result, nil
}

func usage(ctx context.Context, app *cli.App, input usageInput) (map[string]any, error) {
	if app == nil || app.UsageRecorder == nil {
		return nil, errors.New("usage requires database connection")
	}
	userID, err := targetUser(app, input.UserID)
	if err != nil {
		return nil, err
	}
	period := domain.PeriodOf(time.Now())
	if input.Period != "" {
		if period, err = domain.ParsePeriod(input.Period); err != nil {
			return nil, err
		}
	}

	entry, err := app.UsageRecorder.Usage(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(domain.Counters))
	for _, c := range domain.Counters {
		counts[string(c)] = entry.Get(c)
	}
	return map[string]any{"user_id": userID, "period": period, "counters": counts}, nil
}

func recordUsage(ctx context.Context, app *cli.App, input recordUsageInput) (map[string]any, error) {
	if app == nil || app.UsageRecorder == nil {
		return nil, errors.New("usage requires database connection")
	}
	counter, err := domain.ParseCounter(input.Counter)
	if err != nil {
		return nil, err
	}
	userID, err := targetUser(app, input.UserID)
	if err != nil {
		return nil, err
	}
	if input.Amount == 0 {
		input.Amount = 1
	}

	value, err := app.UsageRecorder.IncrementBy(ctx, userID, counter, input.Amount)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user_id": userID, "counter": counter, "value": value}, nil
}

func history(ctx context.Context, app *cli.App, input historyInput) ([]historyView, error) {
	if app == nil || app.BillingService == nil {
		return nil, errors.New("billing history requires database connection")
	}
	userID, err := targetUser(app, input.UserID)
	if err != nil {
		return nil, err
	}
	if input.Limit <= 0 {
		input.Limit = 50
	}

	entries, err := app.BillingService.ListHistory(ctx, userID, input.Limit)
	if err != nil {
		return nil, err
	}
	views := make([]historyView, 0, len(entries))
	for _, e := range entries {
		views = append(views, historyView{
			Kind:              string(e.Kind),
			Amount:            e.Amount.StringFixed(2),
			Currency:          e.Currency,
			ExternalReference: e.ExternalReference,
			SourceEventID:     e.SourceEventID,
			OccurredAt:        e.OccurredAt,
		})
	}
	return views, nil
}

func replayWebhook(ctx context.Context, app *cli.App, input billingWebhookInput) (map[string]any, error) {
	payload, err := loadWebhookPayload(input.EventPath, input.EventJSON)
	if err != nil {
		return nil, err
	}
	evt, err := stripe.ParseEvent(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if app == nil || app.Processor == nil {
		return nil, errors.New("webhook replay requires database connection")
	}

	result, err := app.Processor.Process(ctx, evt)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"event_id":   evt.ID,
		"event_type": evt.Type,
		"outcome":    result.Outcome,
		"duplicate":  result.Duplicate,
		"reason":     result.Reason,
	}, nil
}

func loadWebhookPayload(path string, payload string) ([]byte, error) {
	if payload != "" {
		return []byte(payload), nil
	}
	if path == "" {
		return nil, errors.New("event_path or event_json is required")
	}
	return security.ReadFileLimit(path, stripe.MaxPayloadBytes)
}

func toEntitlementView(e *domain.Entitlement) entitlementView {
	view := entitlementView{
		Feature:   string(e.Feature),
		GrantedAt: e.GrantedAt,
		ExpiresAt: e.ExpiresAt,
	}
	if e.Provenance != nil {
		view.Strategy = string(e.Provenance.Strategy())
		view.SourceEventID = e.Provenance.SourceEventID()
	}
	return view
}
