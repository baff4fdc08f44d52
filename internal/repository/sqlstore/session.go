package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
)

var _ repository.SessionRepository = (*SessionStore)(nil)

// SessionStore keeps sessions in the sessions table so they survive a
// restart of the process.
type SessionStore struct {
	db *DB
}

// sessionRow mirrors the table; flash messages are packed into one column.
type sessionRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Flash     string    `db:"flash"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	query, args, err := s.db.sq.Select("id", "user_id", "flash", "created_at", "expires_at").
		From("sessions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building session select: %w", err)
	}

	var row sessionRow
	if err := sqlscan.Get(ctx, s.db.conn, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlstore: getting session: %w", err)
	}

	sess := &model.Session{
		ID:        row.ID,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}
	sess.DecodeFlash(row.Flash)
	return sess, nil
}

// Save upserts the session row.
//
// Both SQLite (3.24+) and Postgres understand INSERT ... ON CONFLICT DO
// UPDATE, so one statement serves both dialects.
func (s *SessionStore) Save(ctx context.Context, sess *model.Session) error {
	query, args, err := s.db.sq.Insert("sessions").
		Columns("id", "user_id", "flash", "created_at", "expires_at").
		Values(sess.ID, sess.UserID, sess.EncodeFlash(), sess.CreatedAt.UTC(), sess.ExpiresAt.UTC()).
		Suffix("ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id, flash = excluded.flash, expires_at = excluded.expires_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building session upsert: %w", err)
	}

	if _, err := s.db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: saving session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	query, args, err := s.db.sq.Delete("sessions").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building session delete: %w", err)
	}
	if _, err := s.db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: deleting session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	query, args, err := s.db.sq.Delete("sessions").
		Where(squirrel.LtOrEq{"expires_at": now.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: building session sweep: %w", err)
	}

	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: sweeping sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	return int(n), nil
}
