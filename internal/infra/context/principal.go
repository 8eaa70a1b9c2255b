package context

import (
	"context"

	"github.com/google/uuid"
)

const contextKeyPrincipal = contextKey("principal")

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID    uuid.UUID
	Username  string
	SessionID uuid.UUID
}

// WithPrincipal returns a context carrying the authenticated caller.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext extracts the authenticated caller from the context.
// Returns false if the request is anonymous.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKeyPrincipal).(Principal)

	return p, ok && p.UserID != uuid.Nil
}

// UserIDFromContext returns the ID of the authenticated caller.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFromContext(ctx)

	return p.UserID, ok
}
