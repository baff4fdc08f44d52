package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository keyed by ID.
// The registration validator reads it from its own goroutine, hence the
// mutex.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int
	// set to a non-nil error to simulate a database failure
	createErr error
	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.Conflict("user", "email")
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) Update(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.users[u.ID]
	if !ok {
		return apperror.NotFound("user", u.ID)
	}
	stored.FirstName = u.FirstName
	stored.LastName = u.LastName
	return nil
}

func (f *fakeUserRepo) SetMember(_ context.Context, id string) error {
	return f.raise(id, func(u *model.User) { u.IsMember = true })
}

func (f *fakeUserRepo) SetAdmin(_ context.Context, id string) error {
	return f.raise(id, func(u *model.User) { u.IsAdmin = true })
}

func (f *fakeUserRepo) raise(id string, set func(*model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	set(stored)
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	return nil
}

// fakeMessageRepo is an in-memory repository.MessageRepository. List joins
// author names from the user fake, as the SQL store does.
type fakeMessageRepo struct {
	users    *fakeUserRepo
	messages map[string]*model.Message
	nextID   int
	listErr  error
}

func newFakeMessageRepo(users *fakeUserRepo) *fakeMessageRepo {
	return &fakeMessageRepo{users: users, messages: make(map[string]*model.Message)}
}

func (f *fakeMessageRepo) Create(_ context.Context, m *model.Message) error {
	f.nextID++
	m.ID = fmt.Sprintf("msg-%d", f.nextID)
	cp := *m
	f.messages[m.ID] = &cp
	return nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id string) (*model.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, apperror.NotFound("message", id)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessageRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Message, 0, len(f.messages))
	for _, m := range f.messages {
		cp := *m
		if u, err := f.users.GetByID(ctx, m.AuthorID); err == nil {
			cp.AuthorFirstName = u.FirstName
			cp.AuthorLastName = u.LastName
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })

	if opts.Offset >= len(out) {
		return []model.Message{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeMessageRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.messages[id]; !ok {
		return apperror.NotFound("message", id)
	}
	delete(f.messages, id)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
