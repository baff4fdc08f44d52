package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/rs/xid"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

var userColumns = []string{
	"id", "first_name", "last_name", "email", "password_hash",
	"is_member", "is_admin", "created_at", "updated_at",
}

// UserStore persists model.User rows.
type UserStore struct {
	db *DB
}

// Create inserts a new user. ID and timestamps are assigned here and written
// back into user.
//
// A duplicate email surfaces as apperror.Conflict on field "email". The
// registration path checks uniqueness before calling Create; the constraint
// catches the race where two sign-ups for the same address interleave.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	query, args, err := s.db.sq.Insert("users").
		Columns(userColumns...).
		Values(
			user.ID, user.FirstName, user.LastName, user.Email, user.PasswordHash,
			user.IsMember, user.IsAdmin, user.CreatedAt, user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building user insert: %w", err)
	}

	if _, err := s.db.conn.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email")
		}
		return fmt.Errorf("sqlstore: inserting user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.getOne(ctx, squirrel.Eq{"id": id}, "id", id)
}

// GetByEmail retrieves a user by exact email match.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getOne(ctx, squirrel.Eq{"email": email}, "email", email)
}

func (s *UserStore) getOne(ctx context.Context, where squirrel.Eq, key, value string) (*model.User, error) {
	query, args, err := s.db.sq.Select(userColumns...).
		From("users").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building user select: %w", err)
	}

	var u model.User
	if err := sqlscan.Get(ctx, s.db.conn, &u, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlstore: getting user by %s: %w", key, err)
	}
	return &u, nil
}

// Update writes the names. Email and password hash are not mutable after
// registration, and role flags only change through SetMember and SetAdmin.
func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	query, args, err := s.db.sq.Update("users").
		Set("first_name", user.FirstName).
		Set("last_name", user.LastName).
		Set("updated_at", user.UpdatedAt).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building user update: %w", err)
	}

	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: updating user %s: %w", user.ID, err)
	}
	return requireAffected(res, "user", user.ID)
}

// SetMember raises the member flag of one user.
func (s *UserStore) SetMember(ctx context.Context, id string) error {
	return s.raiseFlag(ctx, id, "is_member")
}

// SetAdmin raises the admin flag of one user.
func (s *UserStore) SetAdmin(ctx context.Context, id string) error {
	return s.raiseFlag(ctx, id, "is_admin")
}

// raiseFlag touches a single column, so two role changes racing on the same
// row both survive.
func (s *UserStore) raiseFlag(ctx context.Context, id, column string) error {
	query, args, err := s.db.sq.Update("users").
		Set(column, true).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building %s update: %w", column, err)
	}

	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: setting %s on user %s: %w", column, id, err)
	}
	return requireAffected(res, "user", id)
}

// Delete removes a user. Their messages go with them (ON DELETE CASCADE).
func (s *UserStore) Delete(ctx context.Context, id string) error {
	query, args, err := s.db.sq.Delete("users").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building user delete: %w", err)
	}

	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting user %s: %w", id, err)
	}
	return requireAffected(res, "user", id)
}
