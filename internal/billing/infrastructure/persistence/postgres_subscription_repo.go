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

var _ domain.SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)

// PostgresSubscriptionRepository implements SubscriptionRepository using PostgreSQL.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

const postgresSubscriptionColumns = `user_id, plan_id, status, current_period_start, current_period_end,
	trial_start, trial_end, cancel_at_period_end, canceled_at, ended_at,
	external_subscription_id, external_customer_id, created_at, updated_at`

// Upsert inserts or replaces the subscription keyed by user id.
func (r *PostgresSubscriptionRepository) Upsert(ctx context.Context, s *domain.Subscription) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO subscriptions (` + postgresSubscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = EXCLUDED.canceled_at,
			ended_at = EXCLUDED.ended_at,
			external_subscription_id = EXCLUDED.external_subscription_id,
			external_customer_id = CASE
				WHEN EXCLUDED.external_customer_id <> '' THEN EXCLUDED.external_customer_id
				ELSE subscriptions.external_customer_id
			END,
			updated_at = EXCLUDED.updated_at
	`
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		s.UserID,
		s.PlanID,
		string(s.Status),
		s.CurrentPeriodStart,
		s.CurrentPeriodEnd,
		s.TrialStart,
		s.TrialEnd,
		s.CancelAtPeriodEnd,
		s.CanceledAt,
		s.EndedAt,
		s.ExternalSubscriptionID,
		s.ExternalCustomerID,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// FindByUserID returns the user's subscription.
func (r *PostgresSubscriptionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE user_id = $1`, userID)
}

// FindByExternalID locates the row by processor subscription id.
func (r *PostgresSubscriptionRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	if externalID == "" {
		return nil, domain.ErrSubscriptionNotFound
	}
	return r.findOne(ctx, `WHERE external_subscription_id = $1`, externalID)
}

// FindByCustomerID locates the most recently updated row for a processor customer.
func (r *PostgresSubscriptionRepository) FindByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	if customerID == "" {
		return nil, domain.ErrSubscriptionNotFound
	}
	return r.findOne(ctx, `WHERE external_customer_id = $1 ORDER BY updated_at DESC LIMIT 1`, customerID)
}

func (r *PostgresSubscriptionRepository) findOne(ctx context.Context, where string, arg any) (*domain.Subscription, error) {
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+postgresSubscriptionColumns+` FROM subscriptions `+where, arg)

	var (
		s      domain.Subscription
		status string
	)
	err := row.Scan(&s.UserID, &s.PlanID, &status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.TrialStart, &s.TrialEnd, &s.CancelAtPeriodEnd, &s.CanceledAt, &s.EndedAt,
		&s.ExternalSubscriptionID, &s.ExternalCustomerID, &s.CreatedAt, &s.UpdatedAt)
	if database.IsNoRows(err) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	s.Status = domain.SubscriptionStatus(status)
	return &s, nil
}
