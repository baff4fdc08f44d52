package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/sakif/members-only/internal/model"
)

// newTestDB opens a fresh in-memory SQLite database with the schema applied.
// Each call gets its own database, so tests never see each other's rows.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(context.Background(), Config{
		Driver:      DialectSQLite,
		DSN:         ":memory:",
		AutoMigrate: true,
	}, logger)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, first, last, email string) *model.User {
	t.Helper()
	u := &model.User{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: "$2a$04$notarealhashbutlongenoughforthecolumn",
	}
	if err := db.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}
