package domain

import "fmt"

// BillingCycle describes how often a plan charges.
type BillingCycle string

const (
	CycleNone     BillingCycle = "none"
	CycleMonthly  BillingCycle = "monthly"
	CycleYearly   BillingCycle = "yearly"
	CycleLifetime BillingCycle = "lifetime"
)

// Plan is a read-only catalog entry. Limits are keyed by limit name
// (pdfExportsPerMonth); a missing key or nil value means unlimited.
type Plan struct {
	ID       string
	Name     string
	Price    Money
	Cycle    BillingCycle
	Features map[Feature]bool
	Limits   map[string]*int64
	PriceIDs []string
}

// HasFeature reports whether the plan flags the feature.
func (p Plan) HasFeature(f Feature) bool {
	return p.Features[f]
}

// Limit returns the ceiling for limitName, nil when unlimited.
func (p Plan) Limit(limitName string) (*int64, error) {
	if _, err := CounterForLimit(limitName); err != nil {
		return nil, err
	}
	limit := p.Limits[limitName]
	if limit == nil {
		return nil, nil
	}
	v := *limit
	return &v, nil
}

// Validate checks that every configured limit names a known counter.
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan without id")
	}
	for name, v := range p.Limits {
		if _, err := CounterForLimit(name); err != nil {
			return fmt.Errorf("plan %s: %w", p.ID, err)
		}
		if v != nil && *v < 0 {
			return fmt.Errorf("plan %s: limit %s is negative", p.ID, name)
		}
	}
	return nil
}

// PlanCatalog looks up plan definitions.
type PlanCatalog interface {
	Plan(id string) (Plan, error)
	// PlanForPrice maps a processor price id onto the plan it sells.
	PlanForPrice(priceID string) (Plan, error)
}
