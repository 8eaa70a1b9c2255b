package authsvc_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/metrics"
	http_ "github.com/mkrupp/joynest/internal/infra/transport/http"
	"github.com/mkrupp/joynest/internal/svc/authsvc"
)

func newTestTransport(t *testing.T, burst int) *authsvc.HTTPTransport {
	t.Helper()

	svc, _, _ := setupTestService(t)

	//nolint:exhaustruct
	return authsvc.NewHTTPTransport(svc, metrics.NewRegistry("authsvc"), authsvc.HTTPTransportConfig{
		RateLimit: http_.RateLimitConfig{RequestsPerSecond: 0.001, Burst: burst, IdleTimeout: time.Minute},
		Metrics:   metrics.MetricsConfig{Enabled: true, Path: "/metrics"},
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer

	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T

	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))

	return v
}

func TestHTTPTransport_AccountFlow(t *testing.T) {
	t.Parallel()

	ht := newTestTransport(t, 100)

	rec := doJSON(t, ht, http.MethodPost, "/auth/register", "", map[string]string{
		"username":        "alice",
		"password":        "secret1",
		"passwordConfirm": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	registered := decodeBody[domain.AuthTokenResponse](t, rec)
	assert.NotEmpty(t, registered.Token)

	rec = doJSON(t, ht, http.MethodPost, "/auth/login", "", authsvc.LoginRequest{Username: "alice", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	token := decodeBody[domain.AuthTokenResponse](t, rec).Token

	rec = doJSON(t, ht, http.MethodGet, "/auth/validate", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, registered.User.ID, decodeBody[domain.Identity](t, rec).UserID)

	rec = doJSON(t, ht, http.MethodPatch, "/profiles/me", token, map[string]string{"displayName": "Ally"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Ally", decodeBody[authsvc.ProfileResponse](t, rec).ResolvedName)

	rec = doJSON(t, ht, http.MethodGet, "/profiles/"+registered.User.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	profile := decodeBody[authsvc.ProfileResponse](t, rec)
	assert.Equal(t, "Ally", profile.ResolvedName)
	require.NotNil(t, profile.Username)
	assert.Equal(t, "alice", *profile.Username)

	rec = doJSON(t, ht, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, ht, http.MethodGet, "/auth/validate", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, ht, http.MethodGet, "/auth/validate", registered.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "other sessions survive a sign out")
}

func TestHTTPTransport_Errors(t *testing.T) {
	t.Parallel()

	ht := newTestTransport(t, 100)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     any
		wantCode int
		wantKind domain.ErrorKind
	}{
		{
			name:     "invalid registration",
			method:   http.MethodPost,
			path:     "/auth/register",
			body:     map[string]string{"username": "x", "password": "1"},
			wantCode: http.StatusBadRequest,
			wantKind: domain.KindValidation,
		},
		{
			name:     "unknown field",
			method:   http.MethodPost,
			path:     "/auth/register",
			body:     map[string]string{"user": "alice"},
			wantCode: http.StatusBadRequest,
			wantKind: domain.KindValidation,
		},
		{
			name:     "bad credentials",
			method:   http.MethodPost,
			path:     "/auth/login",
			body:     authsvc.LoginRequest{Username: "nobody", Password: "secret1"},
			wantCode: http.StatusUnauthorized,
			wantKind: domain.KindUnauthenticated,
		},
		{
			name:     "empty credentials",
			method:   http.MethodPost,
			path:     "/auth/login",
			body:     authsvc.LoginRequest{},
			wantCode: http.StatusUnauthorized,
			wantKind: domain.KindUnauthenticated,
		},
		{
			name:     "validate without token",
			method:   http.MethodGet,
			path:     "/auth/validate",
			wantCode: http.StatusUnauthorized,
			wantKind: domain.KindUnauthenticated,
		},
		{
			name:     "logout with garbage token",
			method:   http.MethodPost,
			path:     "/auth/logout",
			token:    "garbage",
			wantCode: http.StatusUnauthorized,
			wantKind: domain.KindUnauthenticated,
		},
		{
			name:     "profile with bad id",
			method:   http.MethodGet,
			path:     "/profiles/nope",
			wantCode: http.StatusNotFound,
			wantKind: domain.KindNotFound,
		},
		{
			name:     "unknown profile",
			method:   http.MethodGet,
			path:     "/profiles/00000000-0000-0000-0000-000000000001",
			wantCode: http.StatusNotFound,
			wantKind: domain.KindNotFound,
		},
		{
			name:     "update profile anonymously",
			method:   http.MethodPatch,
			path:     "/profiles/me",
			body:     map[string]string{"displayName": "x"},
			wantCode: http.StatusUnauthorized,
			wantKind: domain.KindUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := doJSON(t, ht, tt.method, tt.path, tt.token, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantKind, decodeBody[http_.ErrorBody](t, rec).Error.Code)
		})
	}
}

func TestHTTPTransport_RateLimit(t *testing.T) {
	t.Parallel()

	ht := newTestTransport(t, 2)

	for range 2 {
		rec := doJSON(t, ht, http.MethodPost, "/auth/login", "", authsvc.LoginRequest{Username: "a", Password: "b"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := doJSON(t, ht, http.MethodPost, "/auth/login", "", authsvc.LoginRequest{Username: "a", Password: "b"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other routes are not limited
	rec = doJSON(t, ht, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPTransport_Metrics(t *testing.T) {
	t.Parallel()

	ht := newTestTransport(t, 100)

	doJSON(t, ht, http.MethodGet, "/healthz", "", nil)

	rec := doJSON(t, ht, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `joynest_authsvc_http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}
