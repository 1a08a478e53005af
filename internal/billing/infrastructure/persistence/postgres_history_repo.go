package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.HistoryRepository = (*PostgresHistoryRepository)(nil)

// PostgresHistoryRepository implements HistoryRepository using PostgreSQL.
type PostgresHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresHistoryRepository creates a new repository.
func NewPostgresHistoryRepository(pool *pgxpool.Pool) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{pool: pool}
}

// Append writes the entry unless its source event was already recorded.
func (r *PostgresHistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) (bool, error) {
	query := `
		INSERT INTO billing_history (id, user_id, kind, amount, currency, external_reference, source_event_id, occurred_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
		ON CONFLICT (source_event_id) DO NOTHING
	`
	res, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		entry.ID,
		entry.UserID,
		string(entry.Kind),
		entry.Amount.String(),
		entry.Currency,
		entry.ExternalReference,
		entry.SourceEventID,
		entry.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("append history: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

// ListByUser returns the newest entries first.
func (r *PostgresHistoryRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, `
		SELECT id, user_id, kind, amount::text, currency, external_reference, source_event_id, occurred_at
		FROM billing_history WHERE user_id = $1
		ORDER BY occurred_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		var (
			entry        domain.HistoryEntry
			kind, amount string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &kind, &amount, &entry.Currency,
			&entry.ExternalReference, &entry.SourceEventID, &entry.OccurredAt); err != nil {
			return nil, err
		}
		entry.Kind = domain.HistoryKind(kind)
		if entry.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("history %s amount: %w", entry.ID, err)
		}
		entry.OccurredAt = entry.OccurredAt.UTC()
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
