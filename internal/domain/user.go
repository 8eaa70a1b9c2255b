package domain

import (
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUserAlreadyExists is returned when trying to create a user with an existing username or email.
	ErrUserAlreadyExists = NewError(KindConflict, "user already exists")
	// ErrUserNotFound is returned when looking up a non-existent user.
	ErrUserNotFound = NewError(KindNotFound, "user not found")
	// ErrInvalidCredentials is returned when the username/password combination is incorrect.
	ErrInvalidCredentials = NewError(KindUnauthenticated, "invalid credentials")
)

// User represents an account that can sign in.
type User struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Username     string    `db:"username"      json:"username"`
	Email        *string   `db:"email"         json:"email,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at"    json:"createdAt"`
}
