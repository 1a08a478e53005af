package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.EntitlementRepository = (*PostgresEntitlementRepository)(nil)

// PostgresEntitlementRepository implements EntitlementRepository using
// PostgreSQL. Provenance is stored as JSONB.
type PostgresEntitlementRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEntitlementRepository creates a new repository.
func NewPostgresEntitlementRepository(pool *pgxpool.Pool) *PostgresEntitlementRepository {
	return &PostgresEntitlementRepository{pool: pool}
}

// Upsert inserts the grant or refreshes granted_at, expiry and provenance.
func (r *PostgresEntitlementRepository) Upsert(ctx context.Context, e *domain.Entitlement) error {
	provenance, err := domain.EncodeProvenance(e.Provenance)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO entitlements (user_id, feature, granted_at, expires_at, provenance)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, feature) DO UPDATE SET
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at,
			provenance = EXCLUDED.provenance
	`
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		e.UserID, string(e.Feature), e.GrantedAt, e.ExpiresAt, provenance)
	if err != nil {
		return fmt.Errorf("upsert entitlement: %w", err)
	}
	return nil
}

// Find returns the grant for (user, feature), expired or not.
func (r *PostgresEntitlementRepository) Find(ctx context.Context, userID uuid.UUID, feature domain.Feature) (*domain.Entitlement, error) {
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT user_id, feature, granted_at, expires_at, provenance
		FROM entitlements WHERE user_id = $1 AND feature = $2`, userID, string(feature))

	e, err := scanPostgresEntitlement(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entitlement: %w", err)
	}
	return e, nil
}

// ListByUser returns every grant the user holds, ordered by feature.
func (r *PostgresEntitlementRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Entitlement, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, `
		SELECT user_id, feature, granted_at, expires_at, provenance
		FROM entitlements WHERE user_id = $1 ORDER BY feature`, userID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	var result []*domain.Entitlement
	for rows.Next() {
		e, err := scanPostgresEntitlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Delete removes the listed grants and returns the features that were present.
func (r *PostgresEntitlementRepository) Delete(ctx context.Context, userID uuid.UUID, features ...domain.Feature) ([]domain.Feature, error) {
	if len(features) == 0 {
		return nil, nil
	}
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = string(f)
	}

	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, `
		DELETE FROM entitlements
		WHERE user_id = $1 AND feature = ANY($2)
		RETURNING feature`, userID, names)
	if err != nil {
		return nil, fmt.Errorf("delete entitlements: %w", err)
	}
	defer rows.Close()

	var removed []domain.Feature
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		removed = append(removed, domain.Feature(f))
	}
	return removed, rows.Err()
}

func scanPostgresEntitlement(row database.Row) (*domain.Entitlement, error) {
	var (
		e          domain.Entitlement
		feature    string
		grantedAt  time.Time
		provenance []byte
	)
	if err := row.Scan(&e.UserID, &feature, &grantedAt, &e.ExpiresAt, &provenance); err != nil {
		return nil, err
	}
	prov, err := domain.DecodeProvenance(provenance)
	if err != nil {
		return nil, err
	}
	e.Feature = domain.Feature(feature)
	e.GrantedAt = grantedAt.UTC()
	e.Provenance = prov
	return &e, nil
}
