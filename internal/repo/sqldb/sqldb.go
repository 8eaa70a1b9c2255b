// Package sqldb opens the relational store shared by the repositories. It
// hides the differences between the embedded SQLite driver used for local
// runs and tests and the PostgreSQL driver used in production.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/joynest/internal/infra/logging"
)

// Dialect names a supported database driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "pgx"
)

var (
	// ErrUnsupportedDialect is returned for drivers other than sqlite and pgx.
	ErrUnsupportedDialect = errors.New("unsupported database driver")
	// ErrNoDSN is returned when no data source name is configured.
	ErrNoDSN = errors.New("no database DSN")
	// ErrDuplicate is joined into errors caused by unique or primary key violations.
	ErrDuplicate = errors.New("duplicate key")
)

const pgUniqueViolation = "23505"

//nolint:gochecknoinits
func init() {
	// sqlx only knows the mattn driver name for question mark binds
	sqlx.BindDriver(string(DialectSQLite), sqlx.QUESTION)
}

// Config holds the database connection settings.
type Config struct {
	// Driver is either "sqlite" or "pgx"
	Driver string `env:"DRIVER" default:"sqlite"`
	// DSN is a file path for sqlite or a connection URL for pgx
	DSN             string        `env:"DSN"               default:""`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    default:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" default:"5m"`
	BusyTimeout     time.Duration `env:"BUSY_TIMEOUT"      default:"5s"`
}

// DB wraps a sqlx handle with the dialect it talks and a write lock that
// serializes writers where the driver needs it.
type DB struct {
	*sqlx.DB

	dialect   Dialect
	writeLock sync.Locker
}

// Schema holds the DDL statements per dialect.
type Schema map[Dialect][]string

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect := Dialect(strings.ToLower(cfg.Driver))

	log := logging.GetLogger("repo.sqldb").With(
		logging.Group("db", "driver", dialect),
	)

	if cfg.DSN == "" {
		return nil, ErrNoDSN
	}

	dsn := cfg.DSN

	switch dialect {
	case DialectSQLite:
		var err error
		if dsn, err = sqliteDSN(cfg.DSN, cfg.BusyTimeout); err != nil {
			return nil, err
		}
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, cfg.Driver)
	}

	conn, err := sqlx.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	log.InfoContext(ctx, "database opened")

	return New(conn, dialect), nil
}

// New wraps an existing connection. SQLite connections get a real write lock
// because the driver does not handle concurrent writers well.
func New(conn *sqlx.DB, dialect Dialect) *DB {
	var lock sync.Locker = nopLocker{}
	if dialect == DialectSQLite {
		lock = new(sync.Mutex)
	}

	return &DB{DB: conn, dialect: dialect, writeLock: lock}
}

// Dialect returns the dialect of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Migrate runs the schema statements for the connection's dialect.
func (db *DB) Migrate(ctx context.Context, schema Schema) error {
	stmts, ok := schema[db.dialect]
	if !ok {
		return fmt.Errorf("%w: no schema for %s", ErrUnsupportedDialect, db.dialect)
	}

	db.writeLock.Lock()
	defer db.writeLock.Unlock()

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return nil
}

// Write runs fn while holding the write lock.
func (db *DB) Write(fn func() error) error {
	db.writeLock.Lock()
	defer db.writeLock.Unlock()

	return fn()
}

// WriteTx runs fn in a transaction while holding the write lock. The
// transaction is committed when fn returns nil and rolled back otherwise.
func (db *DB) WriteTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	db.writeLock.Lock()
	defer db.writeLock.Unlock()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// IsDuplicate reports whether err is a unique or primary key violation.
func IsDuplicate(err error) bool {
	if errors.Is(err, ErrDuplicate) {
		return true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		default:
			return false
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	return false
}

// IsNoRows reports whether err means a query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func sqliteDSN(dsn string, busyTimeout time.Duration) (string, error) {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")

	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return "", fmt.Errorf("create db dir: %w", err)
		}
	}

	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	params.Add("_pragma", "foreign_keys(1)")

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + params.Encode(), nil
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}
