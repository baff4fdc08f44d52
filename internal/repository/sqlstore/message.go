package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/rs/xid"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
)

var _ repository.MessageRepository = (*MessageStore)(nil)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageStore persists model.Message rows.
type MessageStore struct {
	db *DB
}

// Create inserts a message. A zero Timestamp defaults to now.
func (s *MessageStore) Create(ctx context.Context, msg *model.Message) error {
	msg.ID = xid.New().String()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	query, args, err := s.db.sq.Insert("messages").
		Columns("id", "title", "text", "timestamp", "author_id").
		Values(msg.ID, msg.Title, msg.Text, msg.Timestamp, msg.AuthorID).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building message insert: %w", err)
	}

	if _, err := s.db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: inserting message: %w", err)
	}
	return nil
}

// GetByID returns a single message with its author's name.
func (s *MessageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	query, args, err := s.selectWithAuthor().
		Where(squirrel.Eq{"m.id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building message select: %w", err)
	}

	var m model.Message
	if err := sqlscan.Get(ctx, s.db.conn, &m, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperror.NotFound("message", id)
		}
		return nil, fmt.Errorf("sqlstore: getting message %s: %w", id, err)
	}
	return &m, nil
}

// List returns messages newest first.
//
// PAGINATION:
// Limit <= 0 means the default page size; anything above maxPageSize is
// clamped so a crafted query string cannot pull the whole table.
func (s *MessageStore) List(ctx context.Context, opts repository.ListOptions) ([]model.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query, args, err := s.selectWithAuthor().
		OrderBy("m.timestamp DESC", "m.id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building message list: %w", err)
	}

	messages := []model.Message{}
	if err := sqlscan.Select(ctx, s.db.conn, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("sqlstore: listing messages: %w", err)
	}
	return messages, nil
}

// Delete removes a message by ID.
func (s *MessageStore) Delete(ctx context.Context, id string) error {
	query, args, err := s.db.sq.Delete("messages").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building message delete: %w", err)
	}

	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting message %s: %w", id, err)
	}
	return requireAffected(res, "message", id)
}

func (s *MessageStore) selectWithAuthor() squirrel.SelectBuilder {
	return s.db.sq.Select(
		"m.id AS id",
		"m.title AS title",
		"m.text AS text",
		"m.timestamp AS timestamp",
		"m.author_id AS author_id",
		"u.first_name AS author_first_name",
		"u.last_name AS author_last_name",
	).
		From("messages m").
		Join("users u ON u.id = m.author_id")
}

// requireAffected turns "0 rows affected" into apperror.NotFound.
func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
