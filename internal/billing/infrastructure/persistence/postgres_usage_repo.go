package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.UsageRepository = (*PostgresUsageRepository)(nil)

// PostgresUsageRepository implements UsageRepository using PostgreSQL.
type PostgresUsageRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUsageRepository creates a new repository.
func NewPostgresUsageRepository(pool *pgxpool.Pool) *PostgresUsageRepository {
	return &PostgresUsageRepository{pool: pool}
}

// Increment adds amount to the counter in a single upsert and returns the new total.
func (r *PostgresUsageRepository) Increment(ctx context.Context, userID uuid.UUID, period domain.Period, counter domain.Counter, amount int64) (int64, error) {
	col, err := usageColumn(counter)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		INSERT INTO usage_ledger (user_id, period, %[1]s, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, period) DO UPDATE SET
			%[1]s = usage_ledger.%[1]s + EXCLUDED.%[1]s,
			updated_at = NOW()
		RETURNING %[1]s
	`, col)

	var total int64
	if err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, userID, period.String(), amount).Scan(&total); err != nil {
		return 0, fmt.Errorf("increment %s: %w", counter, err)
	}
	return total, nil
}

// Get returns the month's counters; a missing row reads as zero.
func (r *PostgresUsageRepository) Get(ctx context.Context, userID uuid.UUID, period domain.Period) (*domain.UsageEntry, error) {
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+usageColumnList+` FROM usage_ledger WHERE user_id = $1 AND period = $2`,
		userID, period.String())

	entry, err := scanUsage(row, userID, period)
	if database.IsNoRows(err) {
		return domain.NewUsageEntry(userID, period), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return entry, nil
}
