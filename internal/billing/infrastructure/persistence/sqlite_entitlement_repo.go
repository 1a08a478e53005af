package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.EntitlementRepository = (*SQLiteEntitlementRepository)(nil)

// SQLiteEntitlementRepository implements EntitlementRepository with SQLite.
type SQLiteEntitlementRepository struct {
	db *sql.DB
}

// NewSQLiteEntitlementRepository creates a new repository.
func NewSQLiteEntitlementRepository(db *sql.DB) *SQLiteEntitlementRepository {
	return &SQLiteEntitlementRepository{db: db}
}

// Upsert inserts the grant or refreshes granted_at, expiry and provenance.
func (r *SQLiteEntitlementRepository) Upsert(ctx context.Context, e *domain.Entitlement) error {
	provenance, err := domain.EncodeProvenance(e.Provenance)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO entitlements (user_id, feature, granted_at, expires_at, provenance)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, feature) DO UPDATE SET
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at,
			provenance = excluded.provenance
	`
	_, err = sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		e.UserID.String(),
		string(e.Feature),
		sharedPersistence.FormatSQLiteTime(e.GrantedAt),
		sharedPersistence.FormatSQLiteTimePtr(e.ExpiresAt),
		string(provenance),
	)
	if err != nil {
		return fmt.Errorf("upsert entitlement: %w", err)
	}
	return nil
}

// Find returns the grant for (user, feature), expired or not.
func (r *SQLiteEntitlementRepository) Find(ctx context.Context, userID uuid.UUID, feature domain.Feature) (*domain.Entitlement, error) {
	row := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT user_id, feature, granted_at, expires_at, provenance
		FROM entitlements WHERE user_id = ? AND feature = ?`, userID.String(), string(feature))

	e, err := scanSQLiteEntitlement(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entitlement: %w", err)
	}
	return e, nil
}

// ListByUser returns every grant the user holds, ordered by feature.
func (r *SQLiteEntitlementRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Entitlement, error) {
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT user_id, feature, granted_at, expires_at, provenance
		FROM entitlements WHERE user_id = ? ORDER BY feature`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	var result []*domain.Entitlement
	for rows.Next() {
		e, err := scanSQLiteEntitlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Delete removes the listed grants and returns the features that were present.
func (r *SQLiteEntitlementRepository) Delete(ctx context.Context, userID uuid.UUID, features ...domain.Feature) ([]domain.Feature, error) {
	if len(features) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(features)+1)
	args = append(args, userID.String())
	for _, f := range features {
		args = append(args, string(f))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(features)), ", ")

	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		DELETE FROM entitlements
		WHERE user_id = ? AND feature IN (`+placeholders+`)
		RETURNING feature`, args...)
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

func scanSQLiteEntitlement(row database.Row) (*domain.Entitlement, error) {
	var (
		userID, feature, grantedAt, provenance string
		expiresAt                              sql.NullString
	)
	if err := row.Scan(&userID, &feature, &grantedAt, &expiresAt, &provenance); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("entitlement user id %q: %w", userID, err)
	}
	granted, err := sharedPersistence.ParseSQLiteTime(grantedAt)
	if err != nil {
		return nil, err
	}
	expires, err := sharedPersistence.ParseSQLiteTimePtr(expiresAt)
	if err != nil {
		return nil, err
	}
	prov, err := domain.DecodeProvenance([]byte(provenance))
	if err != nil {
		return nil, err
	}

	return &domain.Entitlement{
		UserID:     id,
		Feature:    domain.Feature(feature),
		GrantedAt:  granted,
		ExpiresAt:  expires,
		Provenance: prov,
	}, nil
}
