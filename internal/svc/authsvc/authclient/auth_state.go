package authclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkrupp/joynest/internal/domain"
)

// AuthState holds the current session of a client and notifies subscribers
// when it changes. It replaces ambient "current user" globals: pass it to
// whatever needs to know who is signed in.
type AuthState struct {
	auth Authenticator
	now  func() time.Time

	mu          sync.RWMutex
	token       string
	identity    domain.Identity
	subscribers map[int]func(domain.AuthEvent)
	nextSubID   int
}

// NewAuthState creates a signed out AuthState backed by auth.
func NewAuthState(auth Authenticator) *AuthState {
	return &AuthState{
		auth:        auth,
		now:         time.Now,
		subscribers: make(map[int]func(domain.AuthEvent)),
	}
}

// Current returns the signed in identity and its token.
func (s *AuthState) Current() (domain.Identity, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.identity, s.token, s.token != ""
}

// Subscribe registers fn for auth events and returns a function removing it.
// fn is called synchronously, after the state has changed.
func (s *AuthState) Subscribe(fn func(domain.AuthEvent)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.subscribers, id)
	}
}

// SignUp registers a new account and signs it in.
func (s *AuthState) SignUp(ctx context.Context, req SignUpRequest) error {
	resp, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return err //nolint:wrapcheck
	}

	s.set(resp, domain.AuthEventSignedUp)

	return nil
}

// SignIn exchanges credentials for a session.
func (s *AuthState) SignIn(ctx context.Context, username, password string) error {
	resp, err := s.auth.SignIn(ctx, username, password)
	if err != nil {
		return err //nolint:wrapcheck
	}

	s.set(resp, domain.AuthEventSignedIn)

	return nil
}

// SignOut revokes the session remotely and clears it locally. The local state
// is cleared even when the remote call fails.
func (s *AuthState) SignOut(ctx context.Context) error {
	_, token, ok := s.Current()
	if !ok {
		return nil
	}

	err := s.auth.SignOut(ctx, token)

	s.clear()

	if err != nil && domain.KindOf(err) != domain.KindUnauthenticated {
		return fmt.Errorf("sign out: %w", err)
	}

	return nil
}

// Check validates the current token. Unauthenticated errors, such as an
// expired or revoked session, sign the client out locally.
func (s *AuthState) Check(ctx context.Context) error {
	_, token, ok := s.Current()
	if !ok {
		return domain.ErrUnauthorized
	}

	identity, err := s.auth.Validate(ctx, token)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnauthenticated {
			s.clear()
		}

		return err //nolint:wrapcheck
	}

	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()

	return nil
}

// HandleError signs the client out if err is an authentication failure and
// returns err. Call it with errors from any authenticated request.
func (s *AuthState) HandleError(err error) error {
	if err != nil && domain.KindOf(err) == domain.KindUnauthenticated {
		s.clear()
	}

	return err
}

func (s *AuthState) set(resp domain.AuthTokenResponse, kind domain.AuthEventKind) {
	s.mu.Lock()
	s.token = resp.Token
	s.identity = domain.Identity{
		UserID:    resp.User.ID,
		Username:  resp.User.Username,
		ExpiresAt: resp.ExpiresAt,
	}
	s.mu.Unlock()

	s.emit(domain.AuthEvent{Kind: kind, UserID: resp.User.ID, Username: resp.User.Username, At: s.now()})
}

func (s *AuthState) clear() {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()

		return
	}

	identity := s.identity
	s.token = ""
	s.identity = domain.Identity{}
	s.mu.Unlock()

	s.emit(domain.AuthEvent{
		Kind:     domain.AuthEventSignedOut,
		UserID:   identity.UserID,
		Username: identity.Username,
		At:       s.now(),
	})
}

func (s *AuthState) emit(event domain.AuthEvent) {
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
