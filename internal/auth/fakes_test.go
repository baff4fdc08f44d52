package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/model"
)

// fakeUserRepo is an in-memory repository.UserRepository. The mutex matters:
// the registration validator looks users up from its own goroutine.
type fakeUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]*model.User
	// set to a non-nil error to simulate a database failure
	getErr error
	calls  int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[u.Email]; ok {
		return apperror.Conflict("user", "email")
	}
	u.ID = "user-" + u.Email
	cp := *u
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) Update(_ context.Context, u *model.User) error {
	return errors.New("not used")
}

func (f *fakeUserRepo) SetMember(_ context.Context, id string) error {
	return errors.New("not used")
}

func (f *fakeUserRepo) SetAdmin(_ context.Context, id string) error {
	return errors.New("not used")
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	return errors.New("not used")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
