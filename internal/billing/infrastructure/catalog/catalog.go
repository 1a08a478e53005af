// Package catalog provides plan definitions and the one-time price table,
// either built in or loaded from YAML files.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

var _ domain.PlanCatalog = (*Catalog)(nil)

// Catalog is an immutable in-memory plan lookup.
type Catalog struct {
	plans   map[string]domain.Plan
	byPrice map[string]string
}

// New indexes plans by id and processor price id.
func New(plans []domain.Plan) (*Catalog, error) {
	c := &Catalog{
		plans:   make(map[string]domain.Plan, len(plans)),
		byPrice: make(map[string]string),
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.ID)
		}
		c.plans[p.ID] = p
		for _, priceID := range p.PriceIDs {
			if owner, dup := c.byPrice[priceID]; dup {
				return nil, fmt.Errorf("price %q mapped to both %s and %s", priceID, owner, p.ID)
			}
			c.byPrice[priceID] = p.ID
		}
	}
	return c, nil
}

// Plan returns the plan with id.
func (c *Catalog) Plan(id string) (domain.Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return domain.Plan{}, fmt.Errorf("%w: %q", domain.ErrPlanNotFound, id)
	}
	return p, nil
}

// PlanForPrice returns the plan sold under a processor price id.
func (c *Catalog) PlanForPrice(priceID string) (domain.Plan, error) {
	id, ok := c.byPrice[priceID]
	if !ok {
		return domain.Plan{}, fmt.Errorf("%w: price %q", domain.ErrPlanNotFound, priceID)
	}
	return c.plans[id], nil
}

// Plans returns every plan, in no particular order.
func (c *Catalog) Plans() []domain.Plan {
	out := make([]domain.Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	return out
}

// Load reads a plan catalog file; an empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(DefaultPlans())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML plan catalog.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}

	plans := make([]domain.Plan, 0, len(file.Plans))
	for _, p := range file.Plans {
		features := make(map[domain.Feature]bool, len(p.Features))
		for name, on := range p.Features {
			features[domain.Feature(name)] = on
		}
		cycle := domain.BillingCycle(p.Cycle)
		if cycle == "" {
			cycle = domain.CycleNone
		}
		plans = append(plans, domain.Plan{
			ID:       p.ID,
			Name:     p.Name,
			Price:    domain.NewMoney(p.Price.Amount, p.Price.Currency),
			Cycle:    cycle,
			Features: features,
			Limits:   p.Limits,
			PriceIDs: p.PriceIDs,
		})
	}
	return New(plans)
}

type catalogFile struct {
	Plans []planFile `yaml:"plans"`
}

type planFile struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Price    domain.Money      `yaml:"price"`
	Cycle    string            `yaml:"cycle"`
	Features map[string]bool   `yaml:"features"`
	Limits   map[string]*int64 `yaml:"limits"`
	PriceIDs []string          `yaml:"price_ids"`
}

// LoadPriceTable reads a price table file; an empty path yields DefaultPriceTable.
func LoadPriceTable(path string) (domain.PriceTable, error) {
	if path == "" {
		return DefaultPriceTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PriceTable{}, fmt.Errorf("read price table: %w", err)
	}
	var table domain.PriceTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return domain.PriceTable{}, fmt.Errorf("parse price table: %w", err)
	}
	for i := range table.Points {
		table.Points[i].Currency = domain.NewMoney(0, table.Points[i].Currency).Currency
	}
	if err := table.Validate(); err != nil {
		return domain.PriceTable{}, err
	}
	return table, nil
}
