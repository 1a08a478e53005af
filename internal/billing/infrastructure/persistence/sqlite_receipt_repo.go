package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.ReceiptRepository = (*SQLiteReceiptRepository)(nil)

// SQLiteReceiptRepository implements ReceiptRepository with SQLite.
type SQLiteReceiptRepository struct {
	db *sql.DB
}

// NewSQLiteReceiptRepository creates a new repository.
func NewSQLiteReceiptRepository(db *sql.DB) *SQLiteReceiptRepository {
	return &SQLiteReceiptRepository{db: db}
}

// Record stores the receipt, overwriting the outcome of an earlier attempt.
func (r *SQLiteReceiptRepository) Record(ctx context.Context, receipt domain.WebhookReceipt) error {
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO webhook_receipts (event_id, event_type, outcome, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET
			outcome = excluded.outcome,
			processed_at = excluded.processed_at`,
		receipt.EventID,
		receipt.EventType,
		string(receipt.Outcome),
		sharedPersistence.FormatSQLiteTime(receipt.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("record receipt: %w", err)
	}
	return nil
}

// Find returns the receipt for eventID.
func (r *SQLiteReceiptRepository) Find(ctx context.Context, eventID string) (*domain.WebhookReceipt, error) {
	var eventType, outcome, processedAt string
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT event_type, outcome, processed_at FROM webhook_receipts WHERE event_id = ?`, eventID).
		Scan(&eventType, &outcome, &processedAt)
	if database.IsNoRows(err) {
		return nil, domain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find receipt: %w", err)
	}

	at, err := sharedPersistence.ParseSQLiteTime(processedAt)
	if err != nil {
		return nil, err
	}
	return &domain.WebhookReceipt{
		EventID:     eventID,
		EventType:   eventType,
		Outcome:     domain.Outcome(outcome),
		ProcessedAt: at,
	}, nil
}
