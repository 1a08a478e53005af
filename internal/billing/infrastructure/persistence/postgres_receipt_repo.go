package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.ReceiptRepository = (*PostgresReceiptRepository)(nil)

// PostgresReceiptRepository implements ReceiptRepository using PostgreSQL.
type PostgresReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresReceiptRepository creates a new repository.
func NewPostgresReceiptRepository(pool *pgxpool.Pool) *PostgresReceiptRepository {
	return &PostgresReceiptRepository{pool: pool}
}

// Record stores the receipt, overwriting the outcome of an earlier attempt.
func (r *PostgresReceiptRepository) Record(ctx context.Context, receipt domain.WebhookReceipt) error {
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO webhook_receipts (event_id, event_type, outcome, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			processed_at = EXCLUDED.processed_at`,
		receipt.EventID, receipt.EventType, string(receipt.Outcome), receipt.ProcessedAt)
	if err != nil {
		return fmt.Errorf("record receipt: %w", err)
	}
	return nil
}

// Find returns the receipt for eventID.
func (r *PostgresReceiptRepository) Find(ctx context.Context, eventID string) (*domain.WebhookReceipt, error) {
	receipt := domain.WebhookReceipt{EventID: eventID}
	var outcome string
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT event_type, outcome, processed_at FROM webhook_receipts WHERE event_id = $1`, eventID).
		Scan(&receipt.EventType, &outcome, &receipt.ProcessedAt)
	if database.IsNoRows(err) {
		return nil, domain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find receipt: %w", err)
	}
	receipt.Outcome = domain.Outcome(outcome)
	receipt.ProcessedAt = receipt.ProcessedAt.UTC()
	return &receipt, nil
}
