package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoAuthToken is returned when an authentication token is required but not provided.
	ErrNoAuthToken = NewError(KindUnauthenticated, "no auth token")
	// ErrInvalidAuthToken is returned when a token's signature is invalid or the session is gone.
	ErrInvalidAuthToken = NewError(KindUnauthenticated, "invalid auth token")
	// ErrAuthTokenExpired is returned when a token or its session has expired.
	ErrAuthTokenExpired = NewError(KindUnauthenticated, "auth token expired")
	// ErrUnauthorized is returned when an operation requires a signed in user.
	ErrUnauthorized = NewError(KindUnauthenticated, "unauthorized")
)

// AuthError is an authentication failure reported by a remote peer, normalized
// into an ErrorKind. Code and Message keep whatever the peer sent.
type AuthError struct {
	ErrKind ErrorKind
	Code    string
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth %s (%s): %s", e.ErrKind, e.Code, e.Message)
	}

	return fmt.Sprintf("auth %s: %s", e.ErrKind, e.Message)
}

// Kind implements the kinded interface.
func (e *AuthError) Kind() ErrorKind {
	return e.ErrKind
}

// Is matches the generic sentinel of the same kind, so callers can test
// errors.Is(err, ErrUnauthorized) regardless of where the error came from.
func (e *AuthError) Is(target error) bool {
	switch e.ErrKind {
	case KindUnauthenticated:
		return target == ErrUnauthorized
	case KindValidation:
		return target == ErrValidation
	case KindForbidden:
		return target == ErrForbidden
	case KindNotFound:
		return target == ErrNotFound
	case KindConflict:
		return target == ErrConflict
	case KindBackend:
		return false
	}

	return false
}

// Session is a signed in user session. The session ID is embedded in the
// issued token so sign-out can revoke it server side.
type Session struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	UserID    uuid.UUID  `db:"user_id"    json:"userId"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt time.Time  `db:"expires_at" json:"expiresAt"`
	RevokedAt *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
}

// Active reports whether the session is neither revoked nor expired at now.
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Identity is the validated identity behind an auth token.
type Identity struct {
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	SessionID uuid.UUID `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthTokenResponse represents a response containing an authentication token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// AuthEventKind names a change of authentication state.
type AuthEventKind string

const (
	AuthEventSignedUp  AuthEventKind = "signed_up"
	AuthEventSignedIn  AuthEventKind = "signed_in"
	AuthEventSignedOut AuthEventKind = "signed_out"
)

// AuthEvent is delivered to auth state subscribers.
type AuthEvent struct {
	Kind     AuthEventKind
	UserID   uuid.UUID
	Username string
	At       time.Time
}
