// Package session maintains who a browser is across requests.
//
// A session is a server-side record (model.Session) holding at most one
// identity reference. The browser holds a signed cookie naming the session;
// the user record is re-read from the user store on every request, so role
// changes and deletions take effect immediately.
//
//	request ──► Restore ──► State{Session, User}
//	               │
//	               ├─ no / bad / expired cookie ─► anonymous
//	               ├─ session row gone or expired ─► anonymous
//	               └─ user gone ─► identity cleared, anonymous
//
// Login always starts a brand-new session (new ID, new cookie) so an ID
// planted in a victim's browser before login is worthless afterwards.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/auth"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
)

// DefaultCookieName is the cookie carrying the signed session reference.
const DefaultCookieName = "sid"

// sweepTickerID identifies the sweeper's ticker to a manual clock in tests.
const sweepTickerID = 1

// Config tunes a Manager.
type Config struct {
	// TTL is how long a session lives after it is created.
	TTL time.Duration
	// CookieName defaults to DefaultCookieName.
	CookieName string
	// CookieSecure sets the Secure attribute. Enable behind HTTPS.
	CookieSecure bool
	// GenericLoginErrors collapses "Incorrect email" and "Incorrect
	// password" into one message.
	GenericLoginErrors bool
}

// State is the per-request view of the session.
// Session is nil when the browser has no live session; User is nil when
// the request is anonymous.
type State struct {
	Session *model.Session
	User    *model.User
}

// Authenticated reports whether the request carries a valid identity.
func (s *State) Authenticated() bool {
	return s != nil && s.User != nil
}

// Manager implements login, logout and per-request restoration.
type Manager struct {
	store    repository.SessionRepository
	users    repository.UserRepository
	verifier *auth.Verifier
	tokens   *auth.TokenService
	clock    abtime.AbstractTime
	cfg      Config
	logger   *slog.Logger
}

// NewManager wires a Manager. A nil clock means real time.
func NewManager(
	store repository.SessionRepository,
	users repository.UserRepository,
	verifier *auth.Verifier,
	tokens *auth.TokenService,
	clock abtime.AbstractTime,
	cfg Config,
	logger *slog.Logger,
) *Manager {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &Manager{
		store:    store,
		users:    users,
		verifier: verifier,
		tokens:   tokens.WithClock(clock.Now),
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Restore rebuilds the State for r.
//
// Anything wrong with the cookie, the session row or the referenced user
// yields an anonymous State and a nil error. Only store failures are
// returned, and those go to the error page.
func (m *Manager) Restore(ctx context.Context, r *http.Request) (*State, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return &State{}, nil
	}

	sid, err := m.tokens.Validate(cookie.Value)
	if err != nil {
		m.logger.Debug("ignoring session cookie", slog.String("error", err.Error()))
		return &State{}, nil
	}

	sess, err := m.store.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("session: loading session: %w", err)
	}

	if sess.Expired(m.clock.Now()) {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return nil, fmt.Errorf("session: deleting expired session: %w", err)
		}
		return &State{}, nil
	}

	if sess.Anonymous() {
		return &State{Session: sess}, nil
	}

	user, err := m.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			m.logger.Info("session references a deleted user; clearing identity",
				slog.String("userID", sess.UserID),
			)
			sess.UserID = ""
			if err := m.store.Save(ctx, sess); err != nil {
				return nil, fmt.Errorf("session: clearing stale identity: %w", err)
			}
			return &State{Session: sess}, nil
		}
		return nil, fmt.Errorf("session: loading user: %w", err)
	}

	return &State{Session: sess, User: user}, nil
}

// Refresh re-reads the current user so a change made earlier in the same
// request (joining the club, becoming admin) is visible.
func (m *Manager) Refresh(ctx context.Context, state *State) error {
	if !state.Authenticated() {
		return nil
	}
	user, err := m.users.GetByID(ctx, state.User.ID)
	if err != nil {
		return fmt.Errorf("session: refreshing user: %w", err)
	}
	state.User = user
	return nil
}

// Login verifies the credentials and, on success, replaces whatever session
// the browser had with a fresh authenticated one.
//
// A rejection stores the user-facing message as a flash and returns the
// *auth.RejectedError; no identity is established. Store failures are
// returned unchanged for the error page.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, state *State, email, password string) (*model.User, error) {
	user, err := m.verifier.Verify(ctx, email, password)
	if err != nil {
		var rej *auth.RejectedError
		if errors.As(err, &rej) {
			if ferr := m.AddFlash(ctx, w, state, rej.Message(m.cfg.GenericLoginErrors)); ferr != nil {
				return nil, ferr
			}
		}
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if state.Session != nil {
		if err := m.store.Delete(ctx, state.Session.ID); err != nil {
			return nil, fmt.Errorf("session: discarding pre-login session: %w", err)
		}
	}

	sess, err := m.start(ctx, w, user.ID)
	if err != nil {
		return nil, err
	}

	state.Session = sess
	state.User = user
	m.logger.Info("user logged in", slog.String("userID", user.ID))
	return user, nil
}

// Logout destroys the session and expires the cookie. Calling it on an
// anonymous request, or twice, is not an error.
func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter, state *State) error {
	if state.Session != nil {
		if err := m.store.Delete(ctx, state.Session.ID); err != nil {
			return fmt.Errorf("session: deleting session: %w", err)
		}
		if state.User != nil {
			m.logger.Info("user logged out", slog.String("userID", state.User.ID))
		}
	}
	m.clearCookie(w)
	state.Session = nil
	state.User = nil
	return nil
}

// AddFlash queues a one-time message, creating an anonymous session first
// if the browser has none.
func (m *Manager) AddFlash(ctx context.Context, w http.ResponseWriter, state *State, msg string) error {
	if state.Session == nil {
		sess, err := m.start(ctx, w, "")
		if err != nil {
			return err
		}
		state.Session = sess
	}
	state.Session.Flash = append(state.Session.Flash, msg)
	if err := m.store.Save(ctx, state.Session); err != nil {
		return fmt.Errorf("session: saving flash: %w", err)
	}
	return nil
}

// PopFlash returns the queued messages and clears them.
func (m *Manager) PopFlash(ctx context.Context, state *State) ([]string, error) {
	if state.Session == nil || len(state.Session.Flash) == 0 {
		return nil, nil
	}
	msgs := state.Session.Flash
	state.Session.Flash = nil
	if err := m.store.Save(ctx, state.Session); err != nil {
		return nil, fmt.Errorf("session: clearing flash: %w", err)
	}
	return msgs, nil
}

// Sweep deletes expired sessions from the store.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpired(ctx, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("session: sweeping: %w", err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval, sweepTickerID)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Channel():
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Error("session sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				m.logger.Debug("expired sessions removed", slog.Int("count", n))
			}
		}
	}
}

// start creates and persists a new session and sets its cookie.
func (m *Manager) start(ctx context.Context, w http.ResponseWriter, userID string) (*model.Session, error) {
	now := m.clock.Now()
	sess := &model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: creating session: %w", err)
	}

	token, err := m.tokens.Generate(sess.ID, m.cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("session: signing cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
