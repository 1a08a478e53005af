package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite outbox repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Save stores a new outbox message. A replayed event id is a no-op.
func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	return r.insert(ctx, sharedPersistence.SQLiteExecutor(ctx, r.db), msg)
}

// SaveBatch stores multiple outbox messages atomically.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		for _, msg := range msgs {
			if err := r.insert(ctx, info.Tx, msg); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		if err := r.insert(ctx, tx, msg); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) insert(ctx context.Context, execer sharedPersistence.SQLiteDBExecutor, msg *Message) error {
	metadata := string(msg.Metadata)
	if metadata == "" {
		metadata = "{}"
	}

	result, err := execer.ExecContext(ctx, `
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, next_retry_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID.String(),
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		metadata,
		sharedPersistence.FormatSQLiteTime(msg.CreatedAt),
		sharedPersistence.FormatSQLiteTimePtr(msg.NextRetryAt),
	)
	if err != nil {
		return err
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

// GetUnpublished retrieves pending messages ordered by creation time.
func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		       payload, metadata, created_at, published_at, next_retry_at, retry_count,
		       last_error, dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`,
		sharedPersistence.FormatSQLiteTime(r.now()), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanSQLiteMessage(rows *sql.Rows) (*Message, error) {
	var (
		msg                                      Message
		eventID, aggregateID, payload, metadata  string
		createdAt                                string
		publishedAt, nextRetryAt, deadLetteredAt sql.NullString
		lastError, deadLetterReason              sql.NullString
	)
	if err := rows.Scan(
		&msg.ID, &eventID, &msg.AggregateType, &aggregateID, &msg.EventType, &msg.RoutingKey,
		&payload, &metadata, &createdAt, &publishedAt, &nextRetryAt, &msg.RetryCount,
		&lastError, &deadLetteredAt, &deadLetterReason,
	); err != nil {
		return nil, err
	}

	var err error
	if msg.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("outbox %d: event id: %w", msg.ID, err)
	}
	if msg.AggregateID, err = uuid.Parse(aggregateID); err != nil {
		return nil, fmt.Errorf("outbox %d: aggregate id: %w", msg.ID, err)
	}
	if msg.CreatedAt, err = sharedPersistence.ParseSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("outbox %d: created_at: %w", msg.ID, err)
	}
	if msg.PublishedAt, err = sharedPersistence.ParseSQLiteTimePtr(publishedAt); err != nil {
		return nil, err
	}
	if msg.NextRetryAt, err = sharedPersistence.ParseSQLiteTimePtr(nextRetryAt); err != nil {
		return nil, err
	}
	if msg.DeadLetteredAt, err = sharedPersistence.ParseSQLiteTimePtr(deadLetteredAt); err != nil {
		return nil, err
	}

	msg.Payload = []byte(payload)
	msg.Metadata = []byte(metadata)
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if deadLetterReason.Valid {
		msg.DeadLetterReason = &deadLetterReason.String
	}
	return &msg, nil
}

// MarkPublished marks a message as successfully published.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET published_at = ? WHERE id = ?`,
		sharedPersistence.FormatSQLiteTime(r.now()), id)
	return err
}

// MarkFailed records a publish failure and schedules the next attempt.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`,
		errMsg, sharedPersistence.FormatSQLiteTime(nextRetryAt), id)
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET dead_lettered_at = ?, dead_letter_reason = ? WHERE id = ?`,
		sharedPersistence.FormatSQLiteTime(r.now()), reason, id)
	return err
}

// DeleteOld removes published messages older than the retention period.
func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`,
		sharedPersistence.FormatSQLiteTime(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
