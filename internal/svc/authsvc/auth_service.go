package authsvc

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/infra/validation"
	"github.com/mkrupp/joynest/internal/repo/user"
	"github.com/mkrupp/joynest/internal/svc/authsvc/authclient"
)

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// SigningKeyFile is the path to the RSA private key file
	SigningKeyFile string `env:"SIGNING_KEY_FILE" default:"var/storage/authsvc.key"`

	// TokenDuration is how long sessions and their tokens stay valid
	TokenDuration time.Duration `env:"TOKEN_DURATION" default:"24h"`

	// SessionPurgeSchedule is the cron spec of the expired session cleanup
	SessionPurgeSchedule string `env:"SESSION_PURGE_SCHEDULE" default:"@every 1h"`
}

// AuthService provides authentication and user management functionality.
// It handles registration, sign-in and sign-out, token validation and
// profiles, and notifies subscribers of auth state changes.
type AuthService struct {
	Config     AuthConfig
	UserRepo   user.Repository
	Log        logging.Logger
	SigningKey *rsa.PrivateKey
	Now        func() time.Time

	mu          sync.RWMutex
	subscribers map[int]func(domain.AuthEvent)
	nextSubID   int
}

var _ authclient.Authenticator = (*AuthService)(nil)

// NewAuthService creates a new AuthService with the given user repository factory and configuration.
// Returns an error if the signing key cannot be loaded or the user repository cannot be created.
func NewAuthService(ctx context.Context, repoFactory user.RepositoryFactory, cfg AuthConfig) (*AuthService, error) {
	log := logging.GetLogger("svc.authsvc.auth_service")

	signingKey, err := GetPrivateKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}

	userRepo, err := repoFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("new user repo: %w", err)
	}

	return &AuthService{
		Config:     cfg,
		UserRepo:   userRepo,
		Log:        log,
		SigningKey: signingKey,
		Now:        time.Now,
	}, nil
}

func (s *AuthService) now() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	return now().UTC().Truncate(time.Microsecond)
}

// SignUp creates a new account and its profile and signs the user in.
// The profile starts out with the username as its only name.
func (s *AuthService) SignUp(ctx context.Context, req authclient.SignUpRequest) (_ domain.AuthTokenResponse, err error) {
	log := s.Log.With(logging.Group("user", "username", req.Username))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "sign up failed", "error", err)
		} else {
			log.InfoContext(ctx, "user signed up")
		}
	}()

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := validation.Struct(req); err != nil {
		return domain.AuthTokenResponse{}, err
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		return domain.AuthTokenResponse{}, fmt.Errorf("hash password: %w", err)
	}

	userID, err := uuid.NewV7()
	if err != nil {
		return domain.AuthTokenResponse{}, fmt.Errorf("new user id: %w", err)
	}

	now := s.now()
	username := req.Username

	newUser := &domain.User{
		ID:           userID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}

	if req.Email != "" {
		newUser.Email = &req.Email
	}

	profile := &domain.Profile{
		ID:        userID,
		Username:  &username,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.UserRepo.CreateUser(ctx, newUser, profile); err != nil {
		return domain.AuthTokenResponse{}, fmt.Errorf("create user: %w", err)
	}

	s.emit(domain.AuthEvent{Kind: domain.AuthEventSignedUp, UserID: userID, Username: username, At: now})

	return s.startSession(ctx, newUser)
}

// SignIn checks the credentials and opens a new session.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) SignIn(ctx context.Context, username, password string) (_ domain.AuthTokenResponse, err error) {
	log := s.Log.With(logging.Group("user", "username", username))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "sign in failed", "error", err)
		} else {
			log.DebugContext(ctx, "user signed in")
		}
	}()

	account, err := s.UserRepo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.AuthTokenResponse{}, errors.Join(domain.ErrInvalidCredentials, err)
		}

		return domain.AuthTokenResponse{}, fmt.Errorf("get user: %w", err)
	}

	ok, err := VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return domain.AuthTokenResponse{}, fmt.Errorf("verify password: %w", err)
	} else if !ok {
		return domain.AuthTokenResponse{}, domain.ErrInvalidCredentials
	}

	return s.startSession(ctx, account)
}

func (s *AuthService) startSession(ctx context.Context, account *domain.User) (domain.AuthTokenResponse, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return domain.AuthTokenResponse{}, fmt.Errorf("new session id: %w", err)
	}

	now := s.now()
	session := &domain.Session{
		ID:        sessionID,
		UserID:    account.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.Config.TokenDuration),
	}

	if err := s.UserRepo.CreateSession(ctx, session); err != nil {
		return domain.AuthTokenResponse{}, fmt.Errorf("create session: %w", err)
	}

	token, err := IssueToken(s.SigningKey, domain.Identity{
		UserID:    account.ID,
		Username:  account.Username,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, now)
	if err != nil {
		return domain.AuthTokenResponse{}, err
	}

	s.emit(domain.AuthEvent{Kind: domain.AuthEventSignedIn, UserID: account.ID, Username: account.Username, At: now})

	user := *account
	user.PasswordHash = ""

	return domain.AuthTokenResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}, nil
}

// SignOut revokes the session behind token. Signing out with an expired
// token succeeds, as there is nothing left to revoke.
func (s *AuthService) SignOut(ctx context.Context, token string) (err error) {
	log := s.Log

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "sign out failed", "error", err)
		} else {
			log.DebugContext(ctx, "user signed out")
		}
	}()

	identity, err := ParseToken(authclient.BearerToken(token), &s.SigningKey.PublicKey, s.now)
	if err != nil {
		if errors.Is(err, domain.ErrAuthTokenExpired) {
			return nil
		}

		return err
	}

	log = log.With(logging.Group("session", "id", identity.SessionID, "user_id", identity.UserID))

	if err := s.UserRepo.RevokeSession(ctx, identity.SessionID, s.now()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.emit(domain.AuthEvent{
		Kind:     domain.AuthEventSignedOut,
		UserID:   identity.UserID,
		Username: identity.Username,
		At:       s.now(),
	})

	return nil
}

// Validate verifies the token and checks that its session is still active.
func (s *AuthService) Validate(ctx context.Context, token string) (identity domain.Identity, err error) {
	log := s.Log

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "validate token failed", "error", err)
		} else {
			log.DebugContext(ctx, "token validated")
		}
	}()

	token = authclient.BearerToken(token)
	if token == "" {
		return domain.Identity{}, domain.ErrNoAuthToken
	}

	identity, err = ParseToken(token, &s.SigningKey.PublicKey, s.now)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("parse token: %w", err)
	}

	log = log.With(logging.Group("session", "id", identity.SessionID, "user_id", identity.UserID))

	session, err := s.UserRepo.GetSession(ctx, identity.SessionID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("get session: %w", err)
	}

	now := s.now()

	switch {
	case session.UserID != identity.UserID:
		return domain.Identity{}, domain.ErrInvalidAuthToken
	case session.RevokedAt != nil:
		return domain.Identity{}, fmt.Errorf("%w: session revoked", domain.ErrInvalidAuthToken)
	case !session.Active(now):
		return domain.Identity{}, domain.ErrAuthTokenExpired
	}

	return identity, nil
}

// GetProfile returns the public profile of a user.
func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (domain.Profile, error) {
	profile, err := s.UserRepo.GetProfile(ctx, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	return *profile, nil
}

// UpdateProfile applies patch to the profile of userID and returns the result.
func (s *AuthService) UpdateProfile(
	ctx context.Context,
	userID uuid.UUID,
	patch domain.ProfilePatch,
) (_ domain.Profile, err error) {
	log := s.Log.With(logging.Group("user", "id", userID))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "update profile failed", "error", err)
		} else {
			log.DebugContext(ctx, "profile updated")
		}
	}()

	if err := validation.Struct(patch); err != nil {
		return domain.Profile{}, err
	}

	profile, err := s.UserRepo.GetProfile(ctx, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	patch.Apply(profile)
	profile.UpdatedAt = s.now()

	if err := s.UserRepo.UpdateProfile(ctx, profile); err != nil {
		return domain.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	return *profile, nil
}

// Subscribe registers fn for auth events and returns a function removing it.
// fn is called synchronously by the goroutine that caused the event.
func (s *AuthService) Subscribe(fn func(domain.AuthEvent)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers == nil {
		s.subscribers = make(map[int]func(domain.AuthEvent))
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.subscribers, id)
	}
}

func (s *AuthService) emit(event domain.AuthEvent) {
	s.mu.RLock()
	subscribers := make([]func(domain.AuthEvent), 0, len(s.subscribers))

	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subscribers {
		fn(event)
	}
}

// PurgeExpiredSessions deletes all sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (n int64, err error) {
	defer func() {
		if err != nil {
			s.Log.ErrorContext(ctx, "purge sessions failed", "error", err)
		} else if n > 0 {
			s.Log.InfoContext(ctx, "expired sessions purged", "count", n)
		}
	}()

	n, err = s.UserRepo.PurgeSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}

	return n, nil
}

// StartJobs schedules the background jobs of the service. They stop when ctx is done.
func (s *AuthService) StartJobs(ctx context.Context) error {
	cronLog := cron.PrintfLogger(logging.GetLogLogger(s.Log, logging.LevelDebug))

	scheduler := cron.New(cron.WithLogger(cronLog), cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))

	if _, err := scheduler.AddFunc(s.Config.SessionPurgeSchedule, func() {
		_, _ = s.PurgeExpiredSessions(ctx)
	}); err != nil {
		return fmt.Errorf("schedule session purge: %w", err)
	}

	scheduler.Start()

	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()

	return nil
}

// Close releases resources held by the service, such as database connections.
// Returns an error if cleanup fails.
func (s *AuthService) Close() error {
	if err := s.UserRepo.Close(); err != nil {
		return fmt.Errorf("close user repo: %w", err)
	}

	return nil
}
