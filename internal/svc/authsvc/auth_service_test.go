package authsvc_test

import (
	"context"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/svc/authsvc"
	"github.com/mkrupp/joynest/internal/svc/authsvc/authclient"
)

//nolint:gochecknoglobals
var testKey = sync.OnceValue(func() *rsa.PrivateKey {
	key, err := authsvc.GeneratePrivateKey(authsvc.DefaultKeySize)
	if err != nil {
		panic(err)
	}

	return key
})

// mockUserRepository implements user.Repository for testing.
type mockUserRepository struct {
	m        sync.Mutex
	users    map[uuid.UUID]*domain.User
	profiles map[uuid.UUID]*domain.Profile
	sessions map[uuid.UUID]*domain.Session
	err      error
}

func newMockUserRepo() *mockUserRepository {
	return &mockUserRepository{
		users:    make(map[uuid.UUID]*domain.User),
		profiles: make(map[uuid.UUID]*domain.Profile),
		sessions: make(map[uuid.UUID]*domain.Session),
	}
}

func (m *mockUserRepository) CreateUser(_ context.Context, user *domain.User, profile *domain.Profile) error {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return m.err
	}

	for _, existing := range m.users {
		if existing.Username == user.Username {
			return domain.ErrUserAlreadyExists
		}
	}

	u, p := *user, *profile
	m.users[user.ID] = &u
	m.profiles[profile.ID] = &p

	return nil
}

func (m *mockUserRepository) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	for _, u := range m.users {
		if u.Username == username {
			found := *u

			return &found, nil
		}
	}

	return nil, domain.ErrUserNotFound
}

func (m *mockUserRepository) GetUserByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.m.Lock()
	defer m.m.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	found := *u

	return &found, nil
}

func (m *mockUserRepository) GetProfile(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
	m.m.Lock()
	defer m.m.Unlock()

	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}

	found := *p

	return &found, nil
}

func (m *mockUserRepository) UpdateProfile(_ context.Context, profile *domain.Profile) error {
	m.m.Lock()
	defer m.m.Unlock()

	if _, ok := m.profiles[profile.ID]; !ok {
		return domain.ErrProfileNotFound
	}

	p := *profile
	m.profiles[profile.ID] = &p

	return nil
}

func (m *mockUserRepository) CreateSession(_ context.Context, session *domain.Session) error {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return m.err
	}

	s := *session
	m.sessions[session.ID] = &s

	return nil
}

func (m *mockUserRepository) GetSession(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	m.m.Lock()
	defer m.m.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrInvalidAuthToken
	}

	found := *s

	return &found, nil
}

func (m *mockUserRepository) RevokeSession(_ context.Context, id uuid.UUID, at time.Time) error {
	m.m.Lock()
	defer m.m.Unlock()

	if s, ok := m.sessions[id]; ok && s.RevokedAt == nil {
		s.RevokedAt = &at
	}

	return nil
}

func (m *mockUserRepository) PurgeSessions(_ context.Context, before time.Time) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()

	var n int64

	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}

	return n, nil
}

func (m *mockUserRepository) Close() error {
	return m.err
}

var ErrRepoError = errors.New("repository error")

// testClock is a settable time source.
type testClock struct {
	m   sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.m.Lock()
	defer c.m.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()

	c.now = c.now.Add(d)
}

func setupTestService(t *testing.T) (*authsvc.AuthService, *mockUserRepository, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mockRepo := newMockUserRepo()

	svc := &authsvc.AuthService{
		Config:     authsvc.AuthConfig{TokenDuration: time.Hour, SessionPurgeSchedule: "@every 1h"},
		UserRepo:   mockRepo,
		Log:        logging.NewNopLogger(),
		SigningKey: testKey(),
		Now:        clock.Now,
	}

	return svc, mockRepo, clock
}

func signUp(t *testing.T, svc *authsvc.AuthService, username string) domain.AuthTokenResponse {
	t.Helper()

	resp, err := svc.SignUp(context.Background(), authclient.SignUpRequest{
		Username: username,
		Password: "secret1",
	})
	require.NoError(t, err)

	return resp
}

func TestAuthService_SignUp(t *testing.T) {
	t.Parallel()

	t.Run("creates user and profile", func(t *testing.T) {
		t.Parallel()

		svc, repo, _ := setupTestService(t)

		resp, err := svc.SignUp(context.Background(), authclient.SignUpRequest{
			Username:        " alice ",
			Email:           "Alice@Example.com",
			Password:        "secret1",
			PasswordConfirm: "secret1",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "alice", resp.User.Username)
		require.NotNil(t, resp.User.Email)
		assert.Equal(t, "alice@example.com", *resp.User.Email)
		assert.Empty(t, resp.User.PasswordHash)

		stored, err := repo.GetUserByUsername(context.Background(), "alice")
		require.NoError(t, err)
		assert.NotEqual(t, "secret1", stored.PasswordHash)

		profile, err := svc.GetProfile(context.Background(), resp.User.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", profile.ResolvedName())

		identity, err := svc.Validate(context.Background(), "Bearer "+resp.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, identity.UserID)
		assert.Equal(t, "alice", identity.Username)
	})

	t.Run("rejects duplicate username", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := setupTestService(t)
		signUp(t, svc, "bob")

		_, err := svc.SignUp(context.Background(), authclient.SignUpRequest{Username: "bob", Password: "secret2"})
		require.ErrorIs(t, err, domain.ErrUserAlreadyExists)
		assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	})

	invalid := []struct {
		name  string
		req   authclient.SignUpRequest
		field string
	}{
		{name: "short username", req: authclient.SignUpRequest{Username: "ab", Password: "secret1"}, field: "username"},
		{name: "bad characters", req: authclient.SignUpRequest{Username: "a b!", Password: "secret1"}, field: "username"},
		{name: "short password", req: authclient.SignUpRequest{Username: "carol", Password: "12345"}, field: "password"},
		{name: "bad email", req: authclient.SignUpRequest{Username: "carol", Email: "nope", Password: "secret1"}, field: "email"},
		{
			name:  "password mismatch",
			req:   authclient.SignUpRequest{Username: "carol", Password: "secret1", PasswordConfirm: "secret2"},
			field: "passwordConfirm",
		},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, repo, _ := setupTestService(t)

			_, err := svc.SignUp(context.Background(), tt.req)
			require.ErrorIs(t, err, domain.ErrValidation)

			var verrs domain.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Contains(t, verrs, tt.field)
			assert.Empty(t, repo.users)
		})
	}

	t.Run("repository error", func(t *testing.T) {
		t.Parallel()

		svc, repo, _ := setupTestService(t)
		repo.err = ErrRepoError

		_, err := svc.SignUp(context.Background(), authclient.SignUpRequest{Username: "dave", Password: "secret1"})
		require.ErrorIs(t, err, ErrRepoError)
		assert.Equal(t, domain.KindBackend, domain.KindOf(err))
	})
}

func TestAuthService_SignIn(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)
	signUp(t, svc, "alice")

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "valid credentials", username: "alice", password: "secret1"},
		{name: "wrong password", username: "alice", password: "secret2", wantErr: domain.ErrInvalidCredentials},
		{name: "unknown user", username: "mallory", password: "secret1", wantErr: domain.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, err := svc.SignIn(context.Background(), tt.username, tt.password)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.KindUnauthenticated, domain.KindOf(err))
				assert.Empty(t, resp.Token)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.username, resp.User.Username)
			assert.Empty(t, resp.User.PasswordHash)

			_, err = svc.Validate(context.Background(), resp.Token)
			require.NoError(t, err)
		})
	}
}

func TestAuthService_SignOut(t *testing.T) {
	t.Parallel()

	t.Run("revokes the session", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := setupTestService(t)
		first := signUp(t, svc, "alice")

		second, err := svc.SignIn(context.Background(), "alice", "secret1")
		require.NoError(t, err)

		require.NoError(t, svc.SignOut(context.Background(), first.Token))

		_, err = svc.Validate(context.Background(), first.Token)
		require.ErrorIs(t, err, domain.ErrInvalidAuthToken)

		// other sessions of the same user stay valid
		_, err = svc.Validate(context.Background(), second.Token)
		require.NoError(t, err)
	})

	t.Run("expired token succeeds", func(t *testing.T) {
		t.Parallel()

		svc, _, clock := setupTestService(t)
		resp := signUp(t, svc, "alice")

		clock.Advance(2 * time.Hour)

		require.NoError(t, svc.SignOut(context.Background(), resp.Token))
	})

	t.Run("garbage token fails", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := setupTestService(t)

		err := svc.SignOut(context.Background(), "not-a-token")
		require.ErrorIs(t, err, domain.ErrInvalidAuthToken)
	})
}

func TestAuthService_Validate(t *testing.T) {
	t.Parallel()

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := setupTestService(t)

		_, err := svc.Validate(context.Background(), "Bearer ")
		require.ErrorIs(t, err, domain.ErrNoAuthToken)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		svc, _, clock := setupTestService(t)
		resp := signUp(t, svc, "alice")

		clock.Advance(time.Hour + time.Second)

		_, err := svc.Validate(context.Background(), resp.Token)
		require.ErrorIs(t, err, domain.ErrAuthTokenExpired)
		assert.Equal(t, domain.KindUnauthenticated, domain.KindOf(err))
	})

	t.Run("token of another key", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := setupTestService(t)
		resp := signUp(t, svc, "alice")

		otherKey, err := authsvc.GeneratePrivateKey(1024)
		require.NoError(t, err)

		svc.SigningKey = otherKey

		_, err = svc.Validate(context.Background(), resp.Token)
		require.ErrorIs(t, err, domain.ErrInvalidAuthToken)
	})

	t.Run("purged session", func(t *testing.T) {
		t.Parallel()

		svc, repo, _ := setupTestService(t)
		resp := signUp(t, svc, "alice")

		repo.m.Lock()
		clear(repo.sessions)
		repo.m.Unlock()

		_, err := svc.Validate(context.Background(), resp.Token)
		require.ErrorIs(t, err, domain.ErrInvalidAuthToken)
	})
}

func TestAuthService_Subscribe(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)

	var (
		m     sync.Mutex
		kinds []domain.AuthEventKind
	)

	unsubscribe := svc.Subscribe(func(e domain.AuthEvent) {
		m.Lock()
		defer m.Unlock()

		kinds = append(kinds, e.Kind)
	})

	resp := signUp(t, svc, "alice")
	require.NoError(t, svc.SignOut(context.Background(), resp.Token))

	unsubscribe()

	_, err := svc.SignIn(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	m.Lock()
	defer m.Unlock()

	assert.Equal(t, []domain.AuthEventKind{
		domain.AuthEventSignedUp,
		domain.AuthEventSignedIn,
		domain.AuthEventSignedOut,
	}, kinds)
}

func TestAuthService_UpdateProfile(t *testing.T) {
	t.Parallel()

	svc, _, clock := setupTestService(t)
	resp := signUp(t, svc, "alice")

	clock.Advance(time.Minute)

	displayName, fullName := "Ally", "Alice Liddell"

	profile, err := svc.UpdateProfile(context.Background(), resp.User.ID, domain.ProfilePatch{
		DisplayName: &displayName,
		FullName:    &fullName,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ally", profile.ResolvedName())
	assert.Equal(t, clock.Now(), profile.UpdatedAt)

	empty := ""

	profile, err = svc.UpdateProfile(context.Background(), resp.User.ID, domain.ProfilePatch{DisplayName: &empty})
	require.NoError(t, err)
	assert.Nil(t, profile.DisplayName)
	assert.Equal(t, "Alice Liddell", profile.ResolvedName())

	_, err = svc.UpdateProfile(context.Background(), uuid.New(), domain.ProfilePatch{FullName: &fullName})
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestAuthService_PurgeExpiredSessions(t *testing.T) {
	t.Parallel()

	svc, repo, clock := setupTestService(t)
	signUp(t, svc, "alice")

	n, err := svc.PurgeExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(2 * time.Hour)

	n, err = svc.PurgeExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, repo.sessions)
}

func TestAuthService_StartJobs(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.StartJobs(ctx))

	svc.Config.SessionPurgeSchedule = "every now and then"
	require.Error(t, svc.StartJobs(ctx))
}

func TestAuthService_AuthState(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)
	signUp(t, svc, "alice")

	state := authclient.NewAuthState(svc)

	var events []domain.AuthEventKind

	state.Subscribe(func(e domain.AuthEvent) { events = append(events, e.Kind) })

	require.NoError(t, state.SignIn(context.Background(), "alice", "secret1"))

	identity, token, ok := state.Current()
	require.True(t, ok)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice", identity.Username)

	require.NoError(t, state.Check(context.Background()))
	require.NoError(t, state.SignOut(context.Background()))

	_, _, ok = state.Current()
	assert.False(t, ok)

	_, err := svc.Validate(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrInvalidAuthToken)

	assert.Equal(t, []domain.AuthEventKind{domain.AuthEventSignedIn, domain.AuthEventSignedOut}, events)
}
