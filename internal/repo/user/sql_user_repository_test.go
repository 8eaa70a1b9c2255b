package user_test

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/repo/sqldb"
	. "github.com/mkrupp/joynest/internal/repo/user"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()

	factory := SQLUserRepositoryFactory(SQLUserRepositoryConfig{
		DB: sqldb.Config{
			Driver:      "sqlite",
			DSN:         filepath.Join(t.TempDir(), "users.db"),
			BusyTimeout: 5 * time.Second,
		},
	})

	repo, err := factory(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func newUser(username string) (*domain.User, *domain.Profile) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.Must(uuid.NewV7())

	return &domain.User{
			ID:           id,
			Username:     username,
			PasswordHash: "hash",
			CreatedAt:    now,
		}, &domain.Profile{
			ID:        id,
			Username:  &username,
			CreatedAt: now,
			UpdatedAt: now,
		}
}

func TestSQLUserRepositoryUsers(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	user, profile := newUser("alice")
	email := "alice@example.com"
	user.Email = &email

	require.NoError(t, repo.CreateUser(ctx, user, profile))

	t.Run("get by username", func(t *testing.T) {
		got, err := repo.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "hash", got.PasswordHash)
		require.NotNil(t, got.Email)
		assert.Equal(t, email, *got.Email)
		assert.True(t, user.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := repo.GetUserByUsername(ctx, "bob")
		require.ErrorIs(t, err, domain.ErrUserNotFound)

		_, err = repo.GetUserByID(ctx, uuid.New())
		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("duplicate username", func(t *testing.T) {
		dup, dupProfile := newUser("alice")

		err := repo.CreateUser(ctx, dup, dupProfile)
		require.ErrorIs(t, err, domain.ErrUserAlreadyExists)
		assert.Equal(t, domain.KindConflict, domain.KindOf(err))

		_, err = repo.GetProfile(ctx, dup.ID)
		require.ErrorIs(t, err, domain.ErrProfileNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup, dupProfile := newUser("alice2")
		dup.Email = &email

		require.ErrorIs(t, repo.CreateUser(ctx, dup, dupProfile), domain.ErrUserAlreadyExists)
	})
}

func TestSQLUserRepositoryProfiles(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	user, profile := newUser("carol")
	require.NoError(t, repo.CreateUser(ctx, user, profile))

	got, err := repo.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol", got.ResolvedName())

	displayName := "Carol C."
	domain.ProfilePatch{DisplayName: &displayName}.Apply(got)
	got.UpdatedAt = time.Now().UTC()

	require.NoError(t, repo.UpdateProfile(ctx, got))

	got, err = repo.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carol C.", got.ResolvedName())

	missing := &domain.Profile{ID: uuid.New(), UpdatedAt: time.Now().UTC()}
	require.ErrorIs(t, repo.UpdateProfile(ctx, missing), domain.ErrProfileNotFound)
}

func TestSQLUserRepositorySessions(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	user, profile := newUser("dave")
	require.NoError(t, repo.CreateUser(ctx, user, profile))

	active := &domain.Session{ID: uuid.New(), UserID: user.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	expired := &domain.Session{ID: uuid.New(), UserID: user.ID, CreatedAt: now, ExpiresAt: now.Add(-time.Hour)}

	require.NoError(t, repo.CreateSession(ctx, active))
	require.NoError(t, repo.CreateSession(ctx, expired))

	got, err := repo.GetSession(ctx, active.ID)
	require.NoError(t, err)
	assert.True(t, got.Active(now))

	require.NoError(t, repo.RevokeSession(ctx, active.ID, now))
	require.NoError(t, repo.RevokeSession(ctx, active.ID, now.Add(time.Minute)))

	got, err = repo.GetSession(ctx, active.ID)
	require.NoError(t, err)
	assert.False(t, got.Active(now))
	require.NotNil(t, got.RevokedAt)
	assert.True(t, now.Equal(*got.RevokedAt))

	n, err := repo.PurgeSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetSession(ctx, expired.ID)
	require.ErrorIs(t, err, domain.ErrInvalidAuthToken)
}

func TestSQLUserRepositoryPostgres(t *testing.T) {
	t.Parallel()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.MatchExpectationsInOrder(true)

	for range 4 {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	repo, err := NewSQLUserRepository(context.Background(), sqldb.New(sqlx.NewDb(mockDB, "pgx"), sqldb.DialectPostgres))
	require.NoError(t, err)

	id := uuid.New()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("erin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at"}).
			AddRow(id.String(), "erin", nil, "hash", created))

	got, err := repo.GetUserByUsername(context.Background(), "erin")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Nil(t, got.Email)
	assert.Equal(t, created, got.CreatedAt)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL")).
		WithArgs(created, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RevokeSession(context.Background(), id, created))
	require.NoError(t, mock.ExpectationsWereMet())
}
