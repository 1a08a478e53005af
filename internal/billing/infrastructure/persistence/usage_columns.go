package persistence

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
)

// usageColumns maps counters to usage_ledger columns. Column names are
// only ever taken from this table, never from caller input.
var usageColumns = map[domain.Counter]string{
	domain.CounterRecipeViews:        "recipe_views",
	domain.CounterPDFExports:         "pdf_exports",
	domain.CounterRecipesCreated:     "recipes_created",
	domain.CounterRecipesShared:      "recipes_shared",
	domain.CounterCollectionsCreated: "collections_created",
}

var usageColumnList = func() string {
	cols := make([]string, 0, len(domain.Counters))
	for _, c := range domain.Counters {
		cols = append(cols, usageColumns[c])
	}
	return strings.Join(cols, ", ")
}()

func usageColumn(c domain.Counter) (string, error) {
	col, ok := usageColumns[c]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownCounter, c)
	}
	return col, nil
}

func scanUsage(row database.Row, userID uuid.UUID, period domain.Period) (*domain.UsageEntry, error) {
	values := make([]int64, len(domain.Counters))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	entry := domain.NewUsageEntry(userID, period)
	for i, c := range domain.Counters {
		entry.Counts[c] = values[i]
	}
	return entry, nil
}
