package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/saffron/internal/identity/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.UserRepository = (*PostgresUserRepository)(nil)

// PostgresUserRepository handles persistence for users using PostgreSQL.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates a new PostgresUserRepository.
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Save inserts or updates the user.
func (r *PostgresUserRepository) Save(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at
	`
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		user.ID(),
		user.Email().String(),
		user.Name().String(),
		user.CreatedAt(),
		user.UpdatedAt(),
	)
	return err
}

// FindByID retrieves a user by id.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`, id)

	user, err := scanPostgresUser(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

// FindByEmail returns all users registered with email.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email domain.Email) ([]*domain.User, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, `
		SELECT id, email, name, created_at, updated_at FROM users
		WHERE email = $1 ORDER BY created_at`, email.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanPostgresUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanPostgresUser(row database.Row) (*domain.User, error) {
	var (
		id                   uuid.UUID
		email, name          string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &email, &name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	addr, err := domain.NewEmail(email)
	if err != nil {
		return nil, err
	}
	displayName, err := domain.NewName(name)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateUser(id, addr, displayName, createdAt.UTC(), updatedAt.UTC()), nil
}
