package http

import (
	"net/http"

	"github.com/mkrupp/joynest/internal/domain"
	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/svc/authsvc/authclient"
)

// AccessTokenQueryParam carries the token for clients that cannot set
// headers, such as browser websockets.
const AccessTokenQueryParam = "access_token"

// AuthorizingMiddleware creates middleware that validates authentication tokens.
// Requests without a valid token are rejected with 401. On success the
// caller's identity is added to the request context.
func AuthorizingMiddleware(
	next http.Handler,
	authClient authclient.AuthClient,
	log logging.Logger,
) http.Handler {
	return authenticate(next, authClient, log, false)
}

// IdentifyingMiddleware is AuthorizingMiddleware for routes open to anonymous
// callers: a valid token adds the identity, a missing one is ignored, an
// invalid one is still rejected.
func IdentifyingMiddleware(
	next http.Handler,
	authClient authclient.AuthClient,
	log logging.Logger,
) http.Handler {
	return authenticate(next, authClient, log, true)
}

func authenticate(next http.Handler, authClient authclient.AuthClient, log logging.Logger, optional bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := RequestToken(r)
		if token == "" {
			if optional {
				next.ServeHTTP(w, r)

				return
			}

			log.DebugContext(r.Context(), "no token provided")
			WriteError(w, r, log, domain.ErrNoAuthToken)

			return
		}

		identity, err := authClient.Validate(r.Context(), token)
		if err != nil {
			log.WarnContext(r.Context(), "validate token failed", "error", err)

			if domain.KindOf(err) != domain.KindUnauthenticated {
				WriteError(w, r, log, err)
			} else {
				WriteError(w, r, log, domain.ErrInvalidAuthToken)
			}

			return
		}

		ctx := context_.WithPrincipal(r.Context(), context_.Principal{
			UserID:    identity.UserID,
			Username:  identity.Username,
			SessionID: identity.SessionID,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestToken extracts the bearer token from the Authorization header or the
// access_token query parameter.
func RequestToken(r *http.Request) string {
	if token := authclient.BearerToken(r.Header.Get(authclient.AuthorizationHeader)); token != "" {
		return token
	}

	return r.URL.Query().Get(AccessTokenQueryParam)
}
