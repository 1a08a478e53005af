package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.UsageRepository = (*SQLiteUsageRepository)(nil)

// SQLiteUsageRepository implements UsageRepository with SQLite.
type SQLiteUsageRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteUsageRepository creates a new repository.
func NewSQLiteUsageRepository(db *sql.DB) *SQLiteUsageRepository {
	return &SQLiteUsageRepository{db: db, now: time.Now}
}

// Increment adds amount to the counter in a single upsert and returns the new total.
func (r *SQLiteUsageRepository) Increment(ctx context.Context, userID uuid.UUID, period domain.Period, counter domain.Counter, amount int64) (int64, error) {
	col, err := usageColumn(counter)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		INSERT INTO usage_ledger (user_id, period, %[1]s, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, period) DO UPDATE SET
			%[1]s = usage_ledger.%[1]s + excluded.%[1]s,
			updated_at = excluded.updated_at
		RETURNING %[1]s
	`, col)

	var total int64
	err = sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query,
		userID.String(),
		period.String(),
		amount,
		sharedPersistence.FormatSQLiteTime(r.now()),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", counter, err)
	}
	return total, nil
}

// Get returns the month's counters; a missing row reads as zero.
func (r *SQLiteUsageRepository) Get(ctx context.Context, userID uuid.UUID, period domain.Period) (*domain.UsageEntry, error) {
	row := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+usageColumnList+` FROM usage_ledger WHERE user_id = ? AND period = ?`,
		userID.String(), period.String())

	entry, err := scanUsage(row, userID, period)
	if database.IsNoRows(err) {
		return domain.NewUsageEntry(userID, period), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return entry, nil
}
