// Package repository declares the storage ports the services depend on.
// Concrete implementations live in sub-packages (sqlstore) or next to their
// only consumer (session.MemoryStore).
//
// Every lookup that finds nothing returns an error wrapping
// apperror.ErrNotFound. A write that violates a uniqueness rule returns an
// error wrapping apperror.ErrConflict.
package repository

import (
	"context"
	"time"

	"github.com/sakif/members-only/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Update persists the names.
	Update(ctx context.Context, user *model.User) error
	// SetMember and SetAdmin raise one role flag without touching any other
	// column. Raising a flag that is already set succeeds.
	SetMember(ctx context.Context, id string) error
	SetAdmin(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// List returns messages newest first with the author names filled in.
	List(ctx context.Context, opts ListOptions) ([]model.Message, error)
	Delete(ctx context.Context, id string) error
}

// SessionRepository stores server-side sessions keyed by their opaque ID.
type SessionRepository interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	// Save inserts or replaces the session.
	Save(ctx context.Context, s *model.Session) error
	// Delete succeeds when the session does not exist.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes every session that expired before now and
	// reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
