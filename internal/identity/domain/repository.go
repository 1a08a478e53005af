package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUserNotFound is returned when no user has the requested id.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines the interface for user persistence.
type UserRepository interface {
	// Save inserts or updates the user by id.
	Save(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	// FindByEmail returns every user with the address. Emails are not
	// unique in the directory, so callers decide what several matches mean.
	FindByEmail(ctx context.Context, email Email) ([]*User, error)
}
