package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Counter names a metered action tracked per user per month.
type Counter string

const (
	CounterRecipeViews        Counter = "recipeViews"
	CounterPDFExports         Counter = "pdfExports"
	CounterRecipesCreated     Counter = "recipesCreated"
	CounterRecipesShared      Counter = "recipesShared"
	CounterCollectionsCreated Counter = "collectionsCreated"
)

// Counters lists every tracked counter.
var Counters = []Counter{
	CounterRecipeViews,
	CounterPDFExports,
	CounterRecipesCreated,
	CounterRecipesShared,
	CounterCollectionsCreated,
}

const limitSuffix = "PerMonth"

// ParseCounter validates a counter name.
func ParseCounter(value string) (Counter, error) {
	for _, c := range Counters {
		if string(c) == value {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCounter, value)
}

// LimitName is the plan limit that caps this counter, e.g. pdfExportsPerMonth.
func (c Counter) LimitName() string {
	return string(c) + limitSuffix
}

// CounterForLimit maps a plan limit name back to its counter.
func CounterForLimit(limit string) (Counter, error) {
	name, ok := strings.CutSuffix(limit, limitSuffix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLimit, limit)
	}
	c, err := ParseCounter(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownLimit, limit)
	}
	return c, nil
}

// Period is a calendar month bucket, "YYYY-MM", in UTC.
type Period string

const periodLayout = "2006-01"

// PeriodOf returns the bucket containing t.
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

// ParsePeriod validates a "YYYY-MM" string.
func ParsePeriod(value string) (Period, error) {
	if _, err := time.Parse(periodLayout, value); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriodID, value)
	}
	return Period(value), nil
}

// Start returns the first instant of the month.
func (p Period) Start() time.Time {
	t, _ := time.Parse(periodLayout, string(p))
	return t
}

// Next returns the following month.
func (p Period) Next() Period {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

func (p Period) String() string {
	return string(p)
}

// UsageEntry holds one user's counters for one month. Missing counters read as zero.
type UsageEntry struct {
	UserID uuid.UUID
	Period Period
	Counts map[Counter]int64
}

// NewUsageEntry returns an all-zero entry.
func NewUsageEntry(userID uuid.UUID, period Period) *UsageEntry {
	return &UsageEntry{UserID: userID, Period: period, Counts: make(map[Counter]int64, len(Counters))}
}

// Get returns the counter value.
func (u *UsageEntry) Get(c Counter) int64 {
	if u == nil {
		return 0
	}
	return u.Counts[c]
}
