package authsvc

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkrupp/joynest/internal/domain"
)

// TokenIssuer is the iss claim of every issued token.
const TokenIssuer = "joynest-authsvc"

// sessionClaims are the claims of a session token: sub is the user ID,
// jti the session ID.
type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssueToken signs an RS256 token for the session of identity.
func IssueToken(key *rsa.PrivateKey, identity domain.Identity, issuedAt time.Time) (string, error) {
	claims := sessionClaims{
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   identity.UserID.String(),
			ID:        identity.SessionID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(identity.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return token, nil
}

// ParseToken verifies the signature and expiry of a token and returns the
// identity it carries. Expired tokens yield ErrAuthTokenExpired, every other
// failure ErrInvalidAuthToken. Whether the session is still active is not
// checked here.
func ParseToken(tokenString string, publicKey *rsa.PublicKey, now func() time.Time) (domain.Identity, error) {
	var claims sessionClaims

	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, errors.Join(domain.ErrAuthTokenExpired, err)
		}

		return domain.Identity{}, errors.Join(domain.ErrInvalidAuthToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Identity{}, errors.Join(domain.ErrInvalidAuthToken, fmt.Errorf("parse sub: %w", err))
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return domain.Identity{}, errors.Join(domain.ErrInvalidAuthToken, fmt.Errorf("parse jti: %w", err))
	}

	return domain.Identity{
		UserID:    userID,
		Username:  claims.Username,
		SessionID: sessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
