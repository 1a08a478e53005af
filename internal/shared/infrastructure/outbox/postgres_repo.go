package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

// Column order matches the Message struct so rows scan by position.
const (
	pgInsertMessage = `
		INSERT INTO outbox (event_id, aggregate_type, aggregate_id, event_type, routing_key,
		                    payload, metadata, created_at, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id`

	pgSelectPending = `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		       payload, metadata, created_at, published_at, next_retry_at, retry_count,
		       last_error, dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at, id
		LIMIT $1`

	pgMarkPublished = `UPDATE outbox SET published_at = NOW() WHERE id = $1`

	pgMarkFailed = `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = $2, next_retry_at = $3
		WHERE id = $1`

	pgMarkDead = `
		UPDATE outbox
		SET dead_lettered_at = NOW(), dead_letter_reason = $2
		WHERE id = $1`

	pgDeletePublished = `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL
		  AND published_at < NOW() - make_interval(days => $1)`
)

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository stores outbox messages in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgreSQL outbox repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save stages msg, joining the caller's transaction when there is one.
// A replayed event id is a no-op.
func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	return insertPG(ctx, sharedPersistence.Executor(ctx, r.pool), msg)
}

// SaveBatch stages msgs atomically.
func (r *PostgresRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if _, ok := sharedPersistence.TxInfoFromContext(ctx); ok {
		return insertAllPG(ctx, sharedPersistence.Executor(ctx, r.pool), msgs)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return insertAllPG(ctx, tx, msgs)
	})
}

func insertAllPG(ctx context.Context, execer sharedPersistence.DBExecutor, msgs []*Message) error {
	for _, msg := range msgs {
		if err := insertPG(ctx, execer, msg); err != nil {
			return err
		}
	}
	return nil
}

func insertPG(ctx context.Context, execer sharedPersistence.DBExecutor, msg *Message) error {
	err := execer.QueryRow(ctx, pgInsertMessage,
		msg.EventID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.RoutingKey,
		msg.Payload, msg.Metadata, msg.CreatedAt, msg.NextRetryAt,
	).Scan(&msg.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

// GetUnpublished returns due messages, oldest first.
func (r *PostgresRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.pool.Query(ctx, pgSelectPending, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Message])
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, pgMarkPublished, id)
	return err
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.pool.Exec(ctx, pgMarkFailed, id, errMsg, nextRetryAt)
	return err
}

func (r *PostgresRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.pool.Exec(ctx, pgMarkDead, id, reason)
	return err
}

// DeleteOld removes published messages older than olderThanDays.
func (r *PostgresRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	tag, err := r.pool.Exec(ctx, pgDeletePublished, olderThanDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
