package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

// Decision is the answer to "may this user use this feature".
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Quota is the answer to "is this user within this monthly limit".
// Limit and Remaining are nil when the plan sets no ceiling.
type Quota struct {
	Allowed   bool          `json:"allowed"`
	Limit     *int64        `json:"limit"`
	Remaining *int64        `json:"remaining"`
	Used      int64         `json:"used"`
	PlanID    string        `json:"plan_id"`
	Period    domain.Period `json:"period"`
	Reason    string        `json:"reason,omitempty"`
}

// QueryService answers entitlement questions from the internal stores only.
// Both queries fail closed: on any store error they deny and return the error.
type QueryService struct {
	subscriptions domain.SubscriptionRepository
	entitlements  domain.EntitlementRepository
	usage         domain.UsageRepository
	catalog       domain.PlanCatalog
	defaultPlanID string
	logger        *slog.Logger
	now           func() time.Time
}

// NewQueryService creates a query service. Users without an active
// subscription are measured against defaultPlanID.
func NewQueryService(
	subscriptions domain.SubscriptionRepository,
	entitlements domain.EntitlementRepository,
	usage domain.UsageRepository,
	catalog domain.PlanCatalog,
	defaultPlanID string,
	logger *slog.Logger,
) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		subscriptions: subscriptions,
		entitlements:  entitlements,
		usage:         usage,
		catalog:       catalog,
		defaultPlanID: defaultPlanID,
		logger:        logger,
		now:           time.Now,
	}
}

// HasFeature allows a standalone unexpired grant, or a feature flagged by
// the plan of an active or trialing subscription.
func (s *QueryService) HasFeature(ctx context.Context, userID uuid.UUID, feature domain.Feature) (Decision, error) {
	now := s.now()

	entitlement, err := s.entitlements.Find(ctx, userID, feature)
	switch {
	case err == nil && entitlement.IsActiveAt(now):
		return Decision{Allowed: true, Reason: "standalone entitlement"}, nil
	case err != nil && !errors.Is(err, domain.ErrEntitlementNotFound):
		return s.deny(userID, feature, "entitlement lookup failed"), err
	}

	sub, err := s.subscriptions.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return s.deny(userID, feature, "subscription lookup failed"), err
	}
	if !sub.IsActive() {
		return s.deny(userID, feature, "no active subscription"), nil
	}

	plan, err := s.catalog.Plan(sub.PlanID)
	if err != nil {
		return s.deny(userID, feature, fmt.Sprintf("unknown plan %s", sub.PlanID)), err
	}
	if !plan.HasFeature(feature) {
		return s.deny(userID, feature, fmt.Sprintf("not included in plan %s", plan.ID)), nil
	}
	return Decision{Allowed: true, Reason: fmt.Sprintf("included in plan %s", plan.ID)}, nil
}

func (s *QueryService) deny(userID uuid.UUID, feature domain.Feature, reason string) Decision {
	s.logger.Debug("feature denied", "user_id", userID, "feature", feature, "reason", reason)
	return Decision{Allowed: false, Reason: reason}
}

// CheckQuota compares the current month's counter with the plan limit:
// allowed iff used < limit, remaining = max(0, limit-used).
func (s *QueryService) CheckQuota(ctx context.Context, userID uuid.UUID, limitName string) (Quota, error) {
	period := domain.PeriodOf(s.now())
	quota := Quota{Period: period}

	counter, err := domain.CounterForLimit(limitName)
	if err != nil {
		return s.denyQuota(userID, limitName, quota, "unknown limit"), err
	}

	plan, err := s.effectivePlan(ctx, userID)
	if err != nil {
		return s.denyQuota(userID, limitName, quota, "plan lookup failed"), err
	}
	quota.PlanID = plan.ID

	limit, err := plan.Limit(limitName)
	if err != nil {
		return s.denyQuota(userID, limitName, quota, "unknown limit"), err
	}

	entry, err := s.usage.Get(ctx, userID, period)
	if err != nil {
		return s.denyQuota(userID, limitName, quota, "usage lookup failed"), err
	}
	quota.Used = entry.Get(counter)

	if limit == nil {
		quota.Allowed = true
		return quota, nil
	}

	remaining := *limit - quota.Used
	if remaining < 0 {
		remaining = 0
	}
	quota.Limit = limit
	quota.Remaining = &remaining
	quota.Allowed = quota.Used < *limit
	if !quota.Allowed {
		quota.Reason = fmt.Sprintf("%s limit of %d reached on plan %s", limitName, *limit, plan.ID)
		s.logger.Debug("quota denied", "user_id", userID, "limit", limitName, "used", quota.Used, "plan_id", plan.ID)
	}
	return quota, nil
}

func (s *QueryService) denyQuota(userID uuid.UUID, limitName string, quota Quota, reason string) Quota {
	s.logger.Debug("quota denied", "user_id", userID, "limit", limitName, "reason", reason)
	quota.Allowed = false
	quota.Reason = reason
	return quota
}

// effectivePlan is the active subscription's plan, else the default plan.
func (s *QueryService) effectivePlan(ctx context.Context, userID uuid.UUID) (domain.Plan, error) {
	sub, err := s.subscriptions.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return domain.Plan{}, err
	}
	if sub.IsActive() {
		return s.catalog.Plan(sub.PlanID)
	}
	return s.catalog.Plan(s.defaultPlanID)
}
