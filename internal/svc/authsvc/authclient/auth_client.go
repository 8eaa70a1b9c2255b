// Package authclient is the client side adapter of the auth service. It
// validates tokens for other services, drives sign-in and sign-out for
// clients, and turns every error shape the auth backend produces into a
// domain.AuthError with a closed ErrorKind.
package authclient

import (
	"context"

	"github.com/google/uuid"

	"github.com/mkrupp/joynest/internal/domain"
)

// AuthClient validates authentication tokens.
type AuthClient interface {
	// Validate checks the token and returns the identity behind it.
	// Invalid, expired or revoked tokens yield an error of kind
	// domain.KindUnauthenticated.
	Validate(ctx context.Context, token string) (domain.Identity, error)
}

// Authenticator is the full client side of the auth service.
type Authenticator interface {
	AuthClient

	SignUp(ctx context.Context, req SignUpRequest) (domain.AuthTokenResponse, error)
	SignIn(ctx context.Context, username, password string) (domain.AuthTokenResponse, error)
	SignOut(ctx context.Context, token string) error
	GetProfile(ctx context.Context, userID uuid.UUID) (domain.Profile, error)
}

// SignUpRequest is the registration payload.
type SignUpRequest struct {
	Username        string `json:"username"                  validate:"required,min=3,max=32,username"`
	Email           string `json:"email,omitempty"           validate:"omitempty,email,max=254"`
	Password        string `json:"password"                  validate:"required,min=6,max=128"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"omitempty,eqfield=Password"`
}
