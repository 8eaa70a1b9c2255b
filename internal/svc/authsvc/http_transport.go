package authsvc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/mkrupp/joynest/internal/domain"
	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/infra/metrics"
	http_ "github.com/mkrupp/joynest/internal/infra/transport/http"
	"github.com/mkrupp/joynest/internal/svc/authsvc/authclient"
)

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig

	RateLimit http_.RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Metrics   metrics.MetricsConfig `envPrefix:"METRICS_"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileResponse is a profile together with the name to display for it.
type ProfileResponse struct {
	domain.Profile

	ResolvedName string `json:"resolvedName"`
}

// NewProfileResponse wraps profile for the API.
func NewProfileResponse(profile domain.Profile) ProfileResponse {
	return ProfileResponse{Profile: profile, ResolvedName: profile.ResolvedName()}
}

// HTTPTransport handles HTTP requests for the authentication service.
type HTTPTransport struct {
	authSvc *AuthService
	limiter *http_.RateLimiter
	metrics *metrics.Registry
	log     logging.Logger
	cfg     HTTPTransportConfig
	mux     *http.ServeMux
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport instance with the given configuration.
// It requires an AuthService for handling authentication operations.
func NewHTTPTransport(
	authSvc *AuthService,
	registry *metrics.Registry,
	cfg HTTPTransportConfig,
) *HTTPTransport {
	ht := &HTTPTransport{
		authSvc: authSvc,
		limiter: http_.NewRateLimiter(cfg.RateLimit),
		metrics: registry,
		log:     logging.GetLogger("svc.authsvc.http_transport"),
		cfg:     cfg,
		mux:     http.NewServeMux(),
	}

	limited := func(h http.HandlerFunc) http.Handler { return ht.limiter.Middleware(h) }
	authorized := func(h http.HandlerFunc) http.Handler { return http_.AuthorizingMiddleware(h, authSvc, ht.log) }

	ht.mux.Handle("POST /auth/register", limited(ht.HandleRegister))
	ht.mux.Handle("POST /auth/login", limited(ht.HandleLogin))
	ht.mux.HandleFunc("POST /auth/logout", ht.HandleLogout)
	ht.mux.HandleFunc("GET /auth/validate", ht.HandleValidate)
	ht.mux.HandleFunc("GET /profiles/{id}", ht.HandleGetProfile)
	ht.mux.Handle("PATCH /profiles/me", authorized(ht.HandleUpdateProfile))
	ht.mux.HandleFunc("GET /healthz", ht.HandleHealth)

	if registry != nil && cfg.Metrics.Enabled {
		ht.mux.Handle("GET "+cfg.Metrics.Path, registry.Handler())
	}

	return ht
}

// Run runs the background work of the transport until ctx is done.
func (ht *HTTPTransport) Run(ctx context.Context) {
	ht.limiter.Run(ctx)
}

// ServeHTTP implements http.Handler and routes the auth service endpoints:
// - POST /auth/register: create an account and sign in
// - POST /auth/login: sign in and get an auth token
// - POST /auth/logout: revoke the session of the bearer token
// - GET /auth/validate: validate an auth token
// - GET /profiles/{id}: fetch a public profile
// - PATCH /profiles/me: update the caller's profile.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ht.metrics != nil {
		ht.metrics.InstrumentingMiddleware(ht.mux).ServeHTTP(w, r)

		return
	}

	ht.mux.ServeHTTP(w, r)
}

// HandleRegister processes registration requests.
// Expects a JSON authclient.SignUpRequest, responds 201 with a token.
func (ht *HTTPTransport) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authclient.SignUpRequest

	if err := http_.DecodeJSON(r, &req); err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	resp, err := ht.authSvc.SignUp(r.Context(), req)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusCreated, resp)
}

// HandleLogin processes sign-in requests.
// Expects a JSON LoginRequest, responds with a token.
func (ht *HTTPTransport) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := http_.DecodeJSON(r, &req); err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	if req.Username == "" || req.Password == "" {
		http_.WriteError(w, r, ht.log, domain.ErrInvalidCredentials)

		return
	}

	resp, err := ht.authSvc.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, resp)
}

// HandleLogout revokes the session of the bearer token.
func (ht *HTTPTransport) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := http_.RequestToken(r)
	if token == "" {
		http_.WriteError(w, r, ht.log, domain.ErrNoAuthToken)

		return
	}

	if err := ht.authSvc.SignOut(r.Context(), token); err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleValidate processes token validation requests.
// Expects the token in the Authorization header with Bearer scheme.
// Returns the identity behind the token if valid.
func (ht *HTTPTransport) HandleValidate(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleValidate(w, r)
}

func (ht *HTTPTransport) handleValidate(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.Path))

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "user token validation failed", "error", err)
		} else {
			log.DebugContext(ctx, "user token validated")
		}
	}(r.Context())

	token := http_.RequestToken(r)
	if token == "" {
		http_.WriteError(w, r, ht.log, domain.ErrNoAuthToken)

		return domain.ErrNoAuthToken
	}

	identity, err := ht.authSvc.Validate(r.Context(), token)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return fmt.Errorf("validate token: %w", err)
	}

	http_.WriteJSON(w, http.StatusOK, identity)

	return nil
}

// HandleGetProfile returns the public profile of the user in the path.
func (ht *HTTPTransport) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http_.WriteError(w, r, ht.log, domain.ErrProfileNotFound)

		return
	}

	profile, err := ht.authSvc.GetProfile(r.Context(), userID)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, NewProfileResponse(profile))
}

// HandleUpdateProfile applies a JSON domain.ProfilePatch to the caller's profile.
func (ht *HTTPTransport) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := context_.UserIDFromContext(r.Context())
	if !ok {
		http_.WriteError(w, r, ht.log, domain.ErrUnauthorized)

		return
	}

	var patch domain.ProfilePatch

	if err := http_.DecodeJSON(r, &patch); err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	profile, err := ht.authSvc.UpdateProfile(r.Context(), userID, patch)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, NewProfileResponse(profile))
}

// HandleHealth reports that the service is up.
func (ht *HTTPTransport) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	http_.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
