package user

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mkrupp/joynest/internal/domain"
)

// Repository defines the interface for account persistence: users, their
// public profiles and their sign-in sessions.
type Repository interface {
	// CreateUser adds a new user together with its initial profile.
	// Returns ErrUserAlreadyExists if the username or email is already taken.
	CreateUser(ctx context.Context, user *domain.User, profile *domain.Profile) error

	// GetUserByUsername retrieves a user by their username.
	// Returns ErrUserNotFound if there is no such user.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetUserByID retrieves a user by their ID.
	// Returns ErrUserNotFound if there is no such user.
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetProfile retrieves the profile of a user.
	// Returns ErrProfileNotFound if there is no such profile.
	GetProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)

	// UpdateProfile stores the mutable fields of a profile.
	// Returns ErrProfileNotFound if there is no such profile.
	UpdateProfile(ctx context.Context, profile *domain.Profile) error

	// CreateSession stores a new session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by its ID, revoked or not.
	// Returns ErrInvalidAuthToken if there is no such session.
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)

	// RevokeSession marks a session as revoked. Revoking a revoked session is a no-op.
	RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error

	// PurgeSessions deletes sessions that expired before the given time and
	// returns how many were removed.
	PurgeSessions(ctx context.Context, before time.Time) (int64, error)

	// Close releases any resources held by the repository.
	// Returns an error if cleanup fails.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Returns an error if initialization fails.
type RepositoryFactory func(ctx context.Context) (Repository, error)
