package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.SubscriptionRepository = (*SQLiteSubscriptionRepository)(nil)

// SQLiteSubscriptionRepository implements SubscriptionRepository with SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

const sqliteSubscriptionColumns = `user_id, plan_id, status, current_period_start, current_period_end,
	trial_start, trial_end, cancel_at_period_end, canceled_at, ended_at,
	external_subscription_id, external_customer_id, created_at, updated_at`

// Upsert inserts or replaces the subscription keyed by user id.
func (r *SQLiteSubscriptionRepository) Upsert(ctx context.Context, s *domain.Subscription) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO subscriptions (` + sqliteSubscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			status = excluded.status,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			trial_start = excluded.trial_start,
			trial_end = excluded.trial_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			canceled_at = excluded.canceled_at,
			ended_at = excluded.ended_at,
			external_subscription_id = excluded.external_subscription_id,
			external_customer_id = CASE
				WHEN excluded.external_customer_id != '' THEN excluded.external_customer_id
				ELSE subscriptions.external_customer_id
			END,
			updated_at = excluded.updated_at
	`
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		s.UserID.String(),
		s.PlanID,
		string(s.Status),
		sharedPersistence.FormatSQLiteTime(s.CurrentPeriodStart),
		sharedPersistence.FormatSQLiteTime(s.CurrentPeriodEnd),
		sharedPersistence.FormatSQLiteTimePtr(s.TrialStart),
		sharedPersistence.FormatSQLiteTimePtr(s.TrialEnd),
		s.CancelAtPeriodEnd,
		sharedPersistence.FormatSQLiteTimePtr(s.CanceledAt),
		sharedPersistence.FormatSQLiteTimePtr(s.EndedAt),
		s.ExternalSubscriptionID,
		s.ExternalCustomerID,
		sharedPersistence.FormatSQLiteTime(s.CreatedAt),
		sharedPersistence.FormatSQLiteTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// FindByUserID returns the user's subscription.
func (r *SQLiteSubscriptionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE user_id = ?`, userID.String())
}

// FindByExternalID locates the row by processor subscription id.
func (r *SQLiteSubscriptionRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	if externalID == "" {
		return nil, domain.ErrSubscriptionNotFound
	}
	return r.findOne(ctx, `WHERE external_subscription_id = ?`, externalID)
}

// FindByCustomerID locates the most recently updated row for a processor customer.
func (r *SQLiteSubscriptionRepository) FindByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	if customerID == "" {
		return nil, domain.ErrSubscriptionNotFound
	}
	return r.findOne(ctx, `WHERE external_customer_id = ? ORDER BY updated_at DESC LIMIT 1`, customerID)
}

func (r *SQLiteSubscriptionRepository) findOne(ctx context.Context, where string, arg any) (*domain.Subscription, error) {
	row := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+sqliteSubscriptionColumns+` FROM subscriptions `+where, arg)

	s, err := scanSQLiteSubscription(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return s, nil
}

func scanSQLiteSubscription(row database.Row) (*domain.Subscription, error) {
	var (
		userID, planID, status                    string
		periodStart, periodEnd                    string
		trialStart, trialEnd, canceledAt, endedAt sql.NullString
		cancelAtPeriodEnd                         bool
		externalID, customerID                    string
		createdAt, updatedAt                      string
	)
	if err := row.Scan(&userID, &planID, &status, &periodStart, &periodEnd,
		&trialStart, &trialEnd, &cancelAtPeriodEnd, &canceledAt, &endedAt,
		&externalID, &customerID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("subscription user id %q: %w", userID, err)
	}

	s := &domain.Subscription{
		UserID:                 id,
		PlanID:                 planID,
		Status:                 domain.SubscriptionStatus(status),
		CancelAtPeriodEnd:      cancelAtPeriodEnd,
		ExternalSubscriptionID: externalID,
		ExternalCustomerID:     customerID,
	}
	if s.CurrentPeriodStart, err = sharedPersistence.ParseSQLiteTime(periodStart); err != nil {
		return nil, err
	}
	if s.CurrentPeriodEnd, err = sharedPersistence.ParseSQLiteTime(periodEnd); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = sharedPersistence.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = sharedPersistence.ParseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	if s.TrialStart, err = sharedPersistence.ParseSQLiteTimePtr(trialStart); err != nil {
		return nil, err
	}
	if s.TrialEnd, err = sharedPersistence.ParseSQLiteTimePtr(trialEnd); err != nil {
		return nil, err
	}
	if s.CanceledAt, err = sharedPersistence.ParseSQLiteTimePtr(canceledAt); err != nil {
		return nil, err
	}
	if s.EndedAt, err = sharedPersistence.ParseSQLiteTimePtr(endedAt); err != nil {
		return nil, err
	}
	return s, nil
}
