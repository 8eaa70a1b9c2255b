package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/repo/sqldb"
)

// SQLUserRepositoryConfig holds configuration for the SQL user repository.
type SQLUserRepositoryConfig struct {
	DB sqldb.Config `envPrefix:"DB_"`
}

// SQLUserRepository implements Repository on top of SQLite or PostgreSQL.
type SQLUserRepository struct {
	db  *sqldb.DB
	log logging.Logger
}

var _ Repository = (*SQLUserRepository)(nil)

//nolint:gochecknoglobals
var schema = sqldb.Schema{
	sqldb.DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT      PRIMARY KEY,
			username      TEXT      NOT NULL UNIQUE,
			email         TEXT      UNIQUE,
			password_hash TEXT      NOT NULL,
			created_at    TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id           TEXT      PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE,
			display_name TEXT,
			full_name    TEXT,
			username     TEXT,
			avatar_url   TEXT,
			created_at   TIMESTAMP NOT NULL,
			updated_at   TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT      PRIMARY KEY,
			user_id    TEXT      NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions (expires_at)`,
	},
	sqldb.DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS users (
			id            UUID        PRIMARY KEY,
			username      TEXT        NOT NULL UNIQUE,
			email         TEXT        UNIQUE,
			password_hash TEXT        NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id           UUID        PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE,
			display_name TEXT,
			full_name    TEXT,
			username     TEXT,
			avatar_url   TEXT,
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id         UUID        PRIMARY KEY,
			user_id    UUID        NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions (expires_at)`,
	},
}

// SQLUserRepositoryFactory creates a factory function that returns a new SQLUserRepository.
// The factory function implements the RepositoryFactory type.
func SQLUserRepositoryFactory(cfg SQLUserRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		db, err := sqldb.Open(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}

		repo, err := NewSQLUserRepository(ctx, db)
		if err != nil {
			_ = db.Close()

			return nil, err
		}

		return repo, nil
	}
}

// NewSQLUserRepository creates a new SQLUserRepository on an open database
// and creates the schema if needed.
func NewSQLUserRepository(ctx context.Context, db *sqldb.DB) (*SQLUserRepository, error) {
	log := logging.GetLogger("repo.user.sql_user_repository").With(
		logging.Group("db", "driver", db.Dialect()),
	)

	if err := db.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("initialize db: %w", err)
	}

	return &SQLUserRepository{
		db:  db,
		log: log,
	}, nil
}

// CreateUser implements Repository.CreateUser.
func (r *SQLUserRepository) CreateUser(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	err := r.db.WriteTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO users (id, username, email, password_hash, created_at)
			VALUES (:id, :username, :email, :password_hash, :created_at)
		`, user); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO profiles (id, display_name, full_name, username, avatar_url, created_at, updated_at)
			VALUES (:id, :display_name, :full_name, :username, :avatar_url, :created_at, :updated_at)
		`, profile); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}

		return nil
	})
	if err != nil {
		if sqldb.IsDuplicate(err) {
			err = errors.Join(domain.ErrUserAlreadyExists, err)
		}

		return err
	}

	r.log.DebugContext(ctx, "user created", "user_id", user.ID)

	return nil
}

// GetUserByUsername implements Repository.GetUserByUsername.
func (r *SQLUserRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getUser(ctx, "username", username)
}

// GetUserByID implements Repository.GetUserByID.
func (r *SQLUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getUser(ctx, "id", id)
}

func (r *SQLUserRepository) getUser(ctx context.Context, column string, value any) (*domain.User, error) {
	var user domain.User

	//nolint:gosec // column is one of two constants
	err := r.db.GetContext(ctx, &user, r.db.Rebind(
		"SELECT id, username, email, password_hash, created_at FROM users WHERE "+column+" = ?",
	), value)
	if err != nil {
		if sqldb.IsNoRows(err) {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetProfile implements Repository.GetProfile.
func (r *SQLUserRepository) GetProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var profile domain.Profile

	err := r.db.GetContext(ctx, &profile, r.db.Rebind(`
		SELECT id, display_name, full_name, username, avatar_url, created_at, updated_at
		FROM profiles WHERE id = ?
	`), id)
	if err != nil {
		if sqldb.IsNoRows(err) {
			err = errors.Join(domain.ErrProfileNotFound, err)
		}

		return nil, fmt.Errorf("query profile: %w", err)
	}

	return &profile, nil
}

// UpdateProfile implements Repository.UpdateProfile.
func (r *SQLUserRepository) UpdateProfile(ctx context.Context, profile *domain.Profile) error {
	return r.db.Write(func() error {
		res, err := r.db.NamedExecContext(ctx, `
			UPDATE profiles
			SET display_name = :display_name, full_name = :full_name, avatar_url = :avatar_url, updated_at = :updated_at
			WHERE id = :id
		`, profile)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}

		return expectOne(res, domain.ErrProfileNotFound)
	})
}

// CreateSession implements Repository.CreateSession.
func (r *SQLUserRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	return r.db.Write(func() error {
		if _, err := r.db.NamedExecContext(ctx, `
			INSERT INTO sessions (id, user_id, created_at, expires_at, revoked_at)
			VALUES (:id, :user_id, :created_at, :expires_at, :revoked_at)
		`, session); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		return nil
	})
}

// GetSession implements Repository.GetSession.
func (r *SQLUserRepository) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var session domain.Session

	err := r.db.GetContext(ctx, &session, r.db.Rebind(`
		SELECT id, user_id, created_at, expires_at, revoked_at FROM sessions WHERE id = ?
	`), id)
	if err != nil {
		if sqldb.IsNoRows(err) {
			err = errors.Join(domain.ErrInvalidAuthToken, err)
		}

		return nil, fmt.Errorf("query session: %w", err)
	}

	return &session, nil
}

// RevokeSession implements Repository.RevokeSession.
func (r *SQLUserRepository) RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.Write(func() error {
		if _, err := r.db.ExecContext(ctx, r.db.Rebind(
			"UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL",
		), at, id); err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}

		return nil
	})
}

// PurgeSessions implements Repository.PurgeSessions.
func (r *SQLUserRepository) PurgeSessions(ctx context.Context, before time.Time) (n int64, err error) {
	err = r.db.Write(func() error {
		res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM sessions WHERE expires_at < ?"), before)
		if err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}

		if n, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		return nil
	})

	return n, err
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLUserRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectOne(res rowsAffecter, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		return notFound
	}

	return nil
}
