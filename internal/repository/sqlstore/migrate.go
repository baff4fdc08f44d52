package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package-level state, so two
// concurrent Migrate calls (parallel tests) must not interleave.
var gooseMu sync.Mutex

// Migrate applies every pending migration for the DB's dialect.
func (db *DB) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	gooseDialect, dir := "sqlite3", "migrations/sqlite"
	if db.dialect == DialectPostgres {
		gooseDialect, dir = "postgres", "migrations/postgres"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("sqlstore: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.conn, dir); err != nil {
		return fmt.Errorf("sqlstore: apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db.conn)
	if err != nil {
		return fmt.Errorf("sqlstore: read schema version: %w", err)
	}
	db.logger.Debug("schema up to date", "dialect", string(db.dialect), "version", version)
	return nil
}
