package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/identity/domain"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/saffron/internal/shared/infrastructure/persistence"
)

var _ domain.UserRepository = (*SQLiteUserRepository)(nil)

// SQLiteUserRepository handles persistence for users using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new SQLiteUserRepository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Save inserts or updates the user.
func (r *SQLiteUserRepository) Save(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			updated_at = excluded.updated_at
	`
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		user.ID().String(),
		user.Email().String(),
		user.Name().String(),
		sharedPersistence.FormatSQLiteTime(user.CreatedAt()),
		sharedPersistence.FormatSQLiteTime(user.UpdatedAt()),
	)
	return err
}

// FindByID retrieves a user by id.
func (r *SQLiteUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, email, name, created_at, updated_at FROM users WHERE id = ?`, id.String())

	user, err := scanSQLiteUser(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

// FindByEmail returns all users registered with email.
func (r *SQLiteUserRepository) FindByEmail(ctx context.Context, email domain.Email) ([]*domain.User, error) {
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, email, name, created_at, updated_at FROM users
		WHERE email = ? ORDER BY created_at`, email.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanSQLiteUser(row database.Row) (*domain.User, error) {
	var id, email, name, createdAt, updatedAt string
	if err := row.Scan(&id, &email, &name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("user id %q: %w", id, err)
	}
	addr, err := domain.NewEmail(email)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	displayName, err := domain.NewName(name)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	created, err := sharedPersistence.ParseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := sharedPersistence.ParseSQLiteTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateUser(userID, addr, displayName, created, updated), nil
}
