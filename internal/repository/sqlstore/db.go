// Package sqlstore implements the repository interfaces on top of
// database/sql. Two backends are supported behind the same code:
//
//   - "sqlite": embedded, pure Go (modernc.org/sqlite). The default, and what
//     the tests use with ":memory:".
//   - "postgres": through pgx's database/sql adapter.
//
// Queries are built with squirrel so the placeholder style follows the
// dialect (? for SQLite, $1 for Postgres) and rows are scanned into structs
// with scany, using the db:"..." tags on the model types.
//
// Schema changes are goose migrations embedded in the binary, one directory
// per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/sethvargo/go-retry"

	// Registers the "pgx" driver with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// driverName maps a dialect to the database/sql driver registered by the
// blank imports above.
func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("sqlstore: unsupported driver %q", d)
	}
}

// Config describes how to reach the database.
type Config struct {
	Driver Dialect
	// DSN is a file path or ":memory:" for SQLite, a connection URL for Postgres.
	DSN string
	// AutoMigrate applies pending migrations during Open.
	AutoMigrate bool
	// ConnectAttempts bounds the startup ping retries. Zero means 5.
	ConnectAttempts uint64
}

// DB wraps a sql.DB connection pool and hands out the per-table stores.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	sq      squirrel.StatementBuilderType
	logger  *slog.Logger
}

// Open creates the connection pool, waits for the database to answer and
// optionally runs migrations.
//
// Postgres in a container often needs a few seconds after the port opens
// before it accepts queries, so the first ping is retried with exponential
// backoff instead of failing the whole process.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	driver, err := cfg.Driver.driverName()
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if cfg.Driver == DialectSQLite {
		dsn = buildSQLiteDSN(cfg.DSN)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}

	if cfg.Driver == DialectSQLite && isMemoryDSN(cfg.DSN) {
		// Every new connection to ":memory:" is a brand-new empty database.
		// Pin the pool to one connection so migrations and queries agree.
		conn.SetMaxOpenConns(1)
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 5
	}
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := conn.PingContext(ctx); err != nil {
			logger.Debug("database not ready", slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	db := &DB{
		conn:    conn,
		dialect: cfg.Driver,
		sq:      squirrel.StatementBuilder.PlaceholderFormat(placeholderFor(cfg.Driver)),
		logger:  logger,
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect reports which backend this DB talks to.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Users returns the user store backed by this DB.
func (db *DB) Users() *UserStore {
	return &UserStore{db: db}
}

// Messages returns the message store backed by this DB.
func (db *DB) Messages() *MessageStore {
	return &MessageStore{db: db}
}

// Sessions returns the session store backed by this DB.
func (db *DB) Sessions() *SessionStore {
	return &SessionStore{db: db}
}

// buildSQLiteDSN attaches the pragmas every pooled connection needs.
//
// PRAGMAs are per connection, so running them once after Open would only
// configure whichever connection happened to execute them. modernc applies
// _pragma query parameters each time it opens a connection instead.
//
// WAL lets readers proceed while a write is in flight. Foreign keys are off
// by default in SQLite; messages.author_id depends on them for ON DELETE
// CASCADE.
func buildSQLiteDSN(path string) string {
	if isMemoryDSN(path) {
		return path + "?_pragma=foreign_keys(ON)"
	}
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
}

func placeholderFor(d Dialect) squirrel.PlaceholderFormat {
	if d == DialectPostgres {
		return squirrel.Dollar
	}
	return squirrel.Question
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:"
}
