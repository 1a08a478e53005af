package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an account in the platform's user directory.
type User struct {
	id        uuid.UUID
	email     Email
	name      Name
	createdAt time.Time
	updatedAt time.Time
}

// NewUser creates a user with a fresh id.
func NewUser(email Email, name Name) *User {
	now := time.Now().UTC()
	return &User{
		id:        uuid.New(),
		email:     email,
		name:      name,
		createdAt: now,
		updatedAt: now,
	}
}

// RehydrateUser restores a user from storage.
func RehydrateUser(id uuid.UUID, email Email, name Name, createdAt, updatedAt time.Time) *User {
	return &User{
		id:        id,
		email:     email,
		name:      name,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (u *User) ID() uuid.UUID        { return u.id }
func (u *User) Email() Email         { return u.email }
func (u *User) Name() Name           { return u.name }
func (u *User) CreatedAt() time.Time { return u.createdAt }
func (u *User) UpdatedAt() time.Time { return u.updatedAt }

// ChangeEmail updates the address used for billing fallbacks.
func (u *User) ChangeEmail(email Email) {
	if u.email.Equals(email) {
		return
	}
	u.email = email
	u.updatedAt = time.Now().UTC()
}
