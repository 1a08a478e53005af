package domain

import "fmt"

// PurchaseType names what a one-time checkout buys.
type PurchaseType string

const (
	PurchaseRecipeAccess PurchaseType = "recipe_access"
	PurchasePDFDownloads PurchaseType = "pdf_downloads"
)

// ParsePurchaseType validates a purchase type.
func ParsePurchaseType(value string) (PurchaseType, error) {
	switch PurchaseType(value) {
	case PurchaseRecipeAccess, PurchasePDFDownloads:
		return PurchaseType(value), nil
	default:
		return "", fmt.Errorf("unknown purchase type %q", value)
	}
}

// Feature returns the entitlement the purchase grants.
func (p PurchaseType) Feature() Feature {
	return Feature(p)
}

// PricePoint is a known one-time price mapped to the purchase it sells.
type PricePoint struct {
	ID           string       `yaml:"id"`
	Amount       int64        `yaml:"amount"`
	Currency     string       `yaml:"currency"`
	PurchaseType PurchaseType `yaml:"purchase_type"`
}

// Price returns the point's amount as Money.
func (p PricePoint) Price() Money {
	return NewMoney(p.Amount, p.Currency)
}

// PriceTable is the versioned set of price points used to identify
// checkouts that arrive without purchase metadata.
type PriceTable struct {
	Version string       `yaml:"version"`
	Points  []PricePoint `yaml:"price_points"`
}

// Match returns the price point charging exactly paid.
func (t PriceTable) Match(paid Money) (PricePoint, bool) {
	for _, p := range t.Points {
		if p.Price().Equal(paid) {
			return p, true
		}
	}
	return PricePoint{}, false
}

// Validate rejects empty versions, unknown purchase types and duplicate prices.
func (t PriceTable) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("price table without version")
	}
	seen := make(map[Money]string, len(t.Points))
	for _, p := range t.Points {
		if p.ID == "" {
			return fmt.Errorf("price table %s: price point without id", t.Version)
		}
		if _, err := ParsePurchaseType(string(p.PurchaseType)); err != nil {
			return fmt.Errorf("price table %s: %w", t.Version, err)
		}
		if p.Amount <= 0 {
			return fmt.Errorf("price table %s: %s: %w", t.Version, p.ID, ErrInvalidAmount)
		}
		if other, dup := seen[p.Price()]; dup {
			return fmt.Errorf("price table %s: %s and %s share a price", t.Version, other, p.ID)
		}
		seen[p.Price()] = p.ID
	}
	return nil
}
