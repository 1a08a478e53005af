package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.HistoryRepository = (*SQLiteHistoryRepository)(nil)

// SQLiteHistoryRepository implements HistoryRepository with SQLite. Amounts
// are stored as decimal strings.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Append writes the entry unless its source event was already recorded.
func (r *SQLiteHistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) (bool, error) {
	query := `
		INSERT INTO billing_history (id, user_id, kind, amount, currency, external_reference, source_event_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_event_id) DO NOTHING
	`
	res, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.ID.String(),
		entry.UserID.String(),
		string(entry.Kind),
		entry.Amount.String(),
		entry.Currency,
		entry.ExternalReference,
		entry.SourceEventID,
		sharedPersistence.FormatSQLiteTime(entry.OccurredAt),
	)
	if err != nil {
		return false, fmt.Errorf("append history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByUser returns the newest entries first.
func (r *SQLiteHistoryRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, user_id, kind, amount, currency, external_reference, source_event_id, occurred_at
		FROM billing_history WHERE user_id = ?
		ORDER BY occurred_at DESC LIMIT ?`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		var id, user, kind, amount, currency, ref, source, occurred string
		if err := rows.Scan(&id, &user, &kind, &amount, &currency, &ref, &source, &occurred); err != nil {
			return nil, err
		}
		entry := &domain.HistoryEntry{
			Kind:              domain.HistoryKind(kind),
			Currency:          currency,
			ExternalReference: ref,
			SourceEventID:     source,
		}
		if entry.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if entry.UserID, err = uuid.Parse(user); err != nil {
			return nil, err
		}
		if entry.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("history %s amount: %w", id, err)
		}
		if entry.OccurredAt, err = sharedPersistence.ParseSQLiteTime(occurred); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
