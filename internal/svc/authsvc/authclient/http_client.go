package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkrupp/joynest/internal/domain"
	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/infra/logging"
)

const (
	TraceIDHeader       = "X-Request-ID"
	AuthorizationHeader = "Authorization"

	maxResponseSize = 1 << 20
)

// HTTPClientConfig holds configuration for the HTTP auth client.
type HTTPClientConfig struct {
	// BaseURL is the root of the auth service
	BaseURL string        `env:"URL" default:"http://localhost:8081"`
	Timeout time.Duration `env:"TIMEOUT" default:"5s"`
}

// HTTPClient implements Authenticator on top of the auth service's HTTP API.
type HTTPClient struct {
	httpClient *http.Client
	log        logging.Logger
	cfg        HTTPClientConfig
}

var _ Authenticator = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTPClient with the given configuration.
// If httpClient is nil, a client with the configured timeout is used.
func NewHTTPClient(
	cfg HTTPClientConfig,
	httpClient *http.Client,
) *HTTPClient {
	if httpClient == nil {
		//nolint:exhaustruct
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &HTTPClient{
		httpClient: httpClient,
		log:        logging.GetLogger("svc.auth.client"),
		cfg:        cfg,
	}
}

// BearerToken strips an optional "Bearer " scheme from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)

	if strings.EqualFold(header, "bearer") {
		return ""
	}

	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}

	return header
}

// Validate implements AuthClient.Validate by calling GET /auth/validate.
func (ht *HTTPClient) Validate(ctx context.Context, token string) (domain.Identity, error) {
	var identity domain.Identity

	if BearerToken(token) == "" {
		return identity, domain.ErrNoAuthToken
	}

	if err := ht.do(ctx, http.MethodGet, "/auth/validate", token, nil, &identity); err != nil {
		return domain.Identity{}, fmt.Errorf("validate: %w", err)
	}

	return identity, nil
}

// SignUp registers a new account and returns its first session.
func (ht *HTTPClient) SignUp(ctx context.Context, req SignUpRequest) (domain.AuthTokenResponse, error) {
	var resp domain.AuthTokenResponse

	if err := ht.do(ctx, http.MethodPost, "/auth/register", "", req, &resp); err != nil {
		return resp, fmt.Errorf("sign up: %w", err)
	}

	return resp, nil
}

// SignIn exchanges credentials for a session token.
func (ht *HTTPClient) SignIn(ctx context.Context, username, password string) (domain.AuthTokenResponse, error) {
	var resp domain.AuthTokenResponse

	body := map[string]string{"username": username, "password": password}

	if err := ht.do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return resp, fmt.Errorf("sign in: %w", err)
	}

	return resp, nil
}

// SignOut revokes the session behind token.
func (ht *HTTPClient) SignOut(ctx context.Context, token string) error {
	if err := ht.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	return nil
}

// GetProfile fetches the public profile of a user.
func (ht *HTTPClient) GetProfile(ctx context.Context, userID uuid.UUID) (domain.Profile, error) {
	var profile domain.Profile

	if err := ht.do(ctx, http.MethodGet, "/profiles/"+userID.String(), "", nil, &profile); err != nil {
		return profile, fmt.Errorf("get profile: %w", err)
	}

	return profile, nil
}

//nolint:cyclop
func (ht *HTTPClient) do(ctx context.Context, method, path, token string, in, out any) (err error) {
	defer func() {
		if err != nil {
			ht.log.DebugContext(ctx, "auth request failed", "method", method, "path", path, "error", err)
		}
	}()

	var body io.Reader

	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, ht.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token = BearerToken(token); token != "" {
		req.Header.Set(AuthorizationHeader, "Bearer "+token)
	}

	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		req.Header.Set(TraceIDHeader, traceID)
	}

	resp, err := ht.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return NormalizeError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}
