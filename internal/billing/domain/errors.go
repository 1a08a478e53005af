package domain

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrEntitlementNotFound  = errors.New("entitlement not found")
	ErrReceiptNotFound      = errors.New("webhook receipt not found")
	ErrPlanNotFound         = errors.New("plan not found")

	ErrUnknownStatus   = errors.New("unknown subscription status")
	ErrInvalidPeriod   = errors.New("current period end must be after its start")
	ErrMissingEndedAt  = errors.New("canceled subscription must have ended_at")
	ErrMissingPlan     = errors.New("subscription requires a plan id")
	ErrMissingUser     = errors.New("user id is required")
	ErrInvalidFeature  = errors.New("feature name is required")
	ErrUnknownCounter  = errors.New("unknown usage counter")
	ErrUnknownLimit    = errors.New("unknown quota limit")
	ErrInvalidPeriodID = errors.New("usage period must be formatted YYYY-MM")
	ErrInvalidAmount   = errors.New("increment amount must be positive")
)
