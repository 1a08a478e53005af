package catalog

import "github.com/felixgeelhaar/saffron/internal/billing/domain"

func limit(v int64) *int64 { return &v }

// DefaultPlans is the catalog used when no file is configured.
func DefaultPlans() []domain.Plan {
	paid := map[domain.Feature]bool{
		domain.FeatureRecipeAccess: true,
		domain.FeaturePDFDownloads: true,
	}
	return []domain.Plan{
		{
			ID:       "free",
			Name:     "Free",
			Price:    domain.NewMoney(0, "usd"),
			Cycle:    domain.CycleNone,
			Features: map[domain.Feature]bool{},
			Limits: map[string]*int64{
				"recipeViewsPerMonth":        limit(30),
				"pdfExportsPerMonth":         limit(5),
				"recipesCreatedPerMonth":     limit(10),
				"recipesSharedPerMonth":      limit(5),
				"collectionsCreatedPerMonth": limit(3),
			},
		},
		{
			ID:       domain.PlanPremium,
			Name:     "Premium (lifetime)",
			Price:    domain.NewMoney(499, "usd"),
			Cycle:    domain.CycleLifetime,
			Features: map[domain.Feature]bool{domain.FeatureRecipeAccess: true},
			Limits: map[string]*int64{
				"pdfExportsPerMonth":         limit(5),
				"collectionsCreatedPerMonth": limit(20),
			},
		},
		{
			ID:       "pro_monthly",
			Name:     "Pro (monthly)",
			Price:    domain.NewMoney(999, "usd"),
			Cycle:    domain.CycleMonthly,
			Features: paid,
			Limits:   map[string]*int64{},
			PriceIDs: []string{"price_pro_monthly"},
		},
		{
			ID:       "pro_yearly",
			Name:     "Pro (yearly)",
			Price:    domain.NewMoney(9900, "usd"),
			Cycle:    domain.CycleYearly,
			Features: paid,
			Limits:   map[string]*int64{},
			PriceIDs: []string{"price_pro_yearly"},
		},
	}
}

// DefaultPriceTable lists the one-time prices sold without a plan.
func DefaultPriceTable() domain.PriceTable {
	return domain.PriceTable{
		Version: "2026-01",
		Points: []domain.PricePoint{
			{ID: "recipe_access_usd", Amount: 499, Currency: "usd", PurchaseType: domain.PurchaseRecipeAccess},
			{ID: "pdf_downloads_usd", Amount: 299, Currency: "usd", PurchaseType: domain.PurchasePDFDownloads},
		},
	}
}
