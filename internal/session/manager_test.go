package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"

	"github.com/sakif/members-only/internal/auth"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
	"github.com/sakif/members-only/internal/repository/sqlstore"
	"github.com/sakif/members-only/internal/session"
)

const testSecret = "test-secret-at-least-16-bytes"

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	db      *sqlstore.DB
	manager *session.Manager
	clock   *abtime.ManualTime
	user    *model.User
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHarness builds a Manager over an in-memory SQLite database holding one
// registered user (ada@example.com / analytical).
func newHarness(t *testing.T, cfg session.Config, store func(*sqlstore.DB) repository.SessionRepository) *harness {
	t.Helper()
	ctx := context.Background()
	logger := quietLogger()

	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:      sqlstore.DialectSQLite,
		DSN:         ":memory:",
		AutoMigrate: true,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	passwords := auth.NewPasswordServiceForTest(4)
	hash, err := passwords.Hash(ctx, "analytical")
	require.NoError(t, err)
	user := &model.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", PasswordHash: hash}
	require.NoError(t, db.Users().Create(ctx, user))

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	clock := abtime.NewManualAtTime(epoch)
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	var sessions repository.SessionRepository = db.Sessions()
	if store != nil {
		sessions = store(db)
	}

	verifier := auth.NewVerifier(db.Users(), passwords, logger)
	m := session.NewManager(sessions, db.Users(), verifier, tokens, clock, cfg, logger)
	return &harness{db: db, manager: m, clock: clock, user: user}
}

// carry copies the cookies a response set onto a new request, as a browser
// would.
func carry(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			continue
		}
		req.AddCookie(c)
	}
	return req
}

func (h *harness) login(t *testing.T) (*httptest.ResponseRecorder, *session.State) {
	t.Helper()
	state := &session.State{}
	rec := httptest.NewRecorder()
	_, err := h.manager.Login(context.Background(), rec, state, "ada@example.com", "analytical")
	require.NoError(t, err)
	return rec, state
}

// ========================================
// Restore
// ========================================

func TestRestore_NoCookieIsAnonymous(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)

	state, err := h.manager.Restore(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.False(t, state.Authenticated())
	assert.Nil(t, state.Session)
}

func TestRestore_GarbageCookieIsAnonymous(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "not-a-token"})
	state, err := h.manager.Restore(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, state.Authenticated())
}

func TestRestore_AfterLogin(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)
	rec, _ := h.login(t)

	state, err := h.manager.Restore(context.Background(), carry(rec))
	require.NoError(t, err)
	require.True(t, state.Authenticated())
	assert.Equal(t, h.user.ID, state.User.ID)
	assert.Equal(t, "Ada", state.User.FirstName)
}

func TestRestore_SeesRoleChangesImmediately(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)
	rec, _ := h.login(t)

	require.NoError(t, h.db.Users().SetMember(context.Background(), h.user.ID))

	state, err := h.manager.Restore(context.Background(), carry(rec))
	require.NoError(t, err)
	assert.True(t, state.User.IsMember)
}

func TestRestore_DeletedUserBecomesAnonymous(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)
	rec, _ := h.login(t)

	require.NoError(t, h.db.Users().Delete(context.Background(), h.user.ID))

	state, err := h.manager.Restore(context.Background(), carry(rec))
	require.NoError(t, err)
	assert.False(t, state.Authenticated())
	require.NotNil(t, state.Session)
	assert.True(t, state.Session.Anonymous())
}

func TestRestore_ExpiredSessionIsAnonymous(t *testing.T) {
	h := newHarness(t, session.Config{TTL: time.Hour}, nil)
	rec, _ := h.login(t)

	h.clock.Advance(time.Hour)

	restored, err := h.manager.Restore(context.Background(), carry(rec))
	require.NoError(t, err)
	assert.False(t, restored.Authenticated())
}

func TestRestore_JustBeforeExpiryStillAuthenticated(t *testing.T) {
	h := newHarness(t, session.Config{TTL: time.Hour}, nil)
	rec, _ := h.login(t)

	h.clock.Advance(59 * time.Minute)

	state, err := h.manager.Restore(context.Background(), carry(rec))
	require.NoError(t, err)
	assert.True(t, state.Authenticated())
}

// ========================================
// Login / Logout
// ========================================

func TestLogin_SetsHardenedCookie(t *testing.T) {
	h := newHarness(t, session.Config{CookieSecure: true}, nil)
	rec, state := h.login(t)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, session.DefaultCookieName, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.NotContains(t, c.Value, state.Session.ID, "cookie carries a signed token, not the bare ID")
}

func TestLogin_RotatesSessionID(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)
	ctx := context.Background()

	// An anonymous session exists first, as it would after a failed attempt.
	state := &session.State{}
	require.NoError(t, h.manager.AddFlash(ctx, httptest.NewRecorder(), state, "hello"))
	before := state.Session.ID

	_, err := h.manager.Login(ctx, httptest.NewRecorder(), state, "ada@example.com", "analytical")
	require.NoError(t, err)
	assert.NotEqual(t, before, state.Session.ID)

	_, err = h.db.Sessions().Get(ctx, before)
	assert.Error(t, err, "pre-login session is gone")
}

func TestLogin_RejectionFlashesDistinctMessages(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     string
	}{
		{"unknown email", "grace@example.com", "analytical", "Incorrect email"},
		{"wrong password", "ada@example.com", "difference", "Incorrect password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, session.Config{}, nil)
			ctx := context.Background()
			state := &session.State{}

			_, err := h.manager.Login(ctx, httptest.NewRecorder(), state, tt.email, tt.password)
			require.Error(t, err)
			assert.True(t, errors.Is(err, auth.ErrRejected))
			assert.False(t, state.Authenticated())

			flashes, err := h.manager.PopFlash(ctx, state)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, flashes)
		})
	}
}

func TestLogin_GenericMessages(t *testing.T) {
	h := newHarness(t, session.Config{GenericLoginErrors: true}, nil)
	ctx := context.Background()
	state := &session.State{}

	_, err := h.manager.Login(ctx, httptest.NewRecorder(), state, "grace@example.com", "analytical")
	require.Error(t, err)

	flashes, err := h.manager.PopFlash(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.GenericLoginMessage}, flashes)
}

func TestLogout_ClearsSessionAndCookie(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)
	ctx := context.Background()
	rec, state := h.login(t)
	sid := state.Session.ID

	out := httptest.NewRecorder()
	require.NoError(t, h.manager.Logout(ctx, out, state))
	assert.False(t, state.Authenticated())

	cookies := out.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	// Replaying the old cookie no longer authenticates.
	restored, err := h.manager.Restore(ctx, carry(rec))
	require.NoError(t, err)
	assert.False(t, restored.Authenticated())

	_, err = h.db.Sessions().Get(ctx, sid)
	assert.Error(t, err)
}

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)
	state := &session.State{}

	assert.NoError(t, h.manager.Logout(context.Background(), httptest.NewRecorder(), state))
	assert.NoError(t, h.manager.Logout(context.Background(), httptest.NewRecorder(), state))
}

// ========================================
// Flash, Refresh, Sweep
// ========================================

func TestFlash_SurvivesOneRequest(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	state := &session.State{}
	require.NoError(t, h.manager.AddFlash(ctx, rec, state, "first"))
	require.NoError(t, h.manager.AddFlash(ctx, rec, state, "second"))

	next, err := h.manager.Restore(ctx, carry(rec))
	require.NoError(t, err)
	flashes, err := h.manager.PopFlash(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, flashes)

	again, err := h.manager.Restore(ctx, carry(rec))
	require.NoError(t, err)
	flashes, err = h.manager.PopFlash(ctx, again)
	require.NoError(t, err)
	assert.Empty(t, flashes)
}

func TestRefresh_PicksUpUpdate(t *testing.T) {
	h := newHarness(t, session.Config{}, nil)
	_, state := h.login(t)

	require.NoError(t, h.db.Users().SetAdmin(context.Background(), h.user.ID))

	require.NoError(t, h.manager.Refresh(context.Background(), state))
	assert.True(t, state.User.IsAdmin)
}

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	h := newHarness(t, session.Config{TTL: time.Hour}, nil)
	ctx := context.Background()

	_, old := h.login(t)
	h.clock.Advance(30 * time.Minute)
	_, fresh := h.login(t)
	h.clock.Advance(30 * time.Minute)

	n, err := h.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = h.db.Sessions().Get(ctx, old.Session.ID)
	assert.Error(t, err)
	_, err = h.db.Sessions().Get(ctx, fresh.Session.ID)
	assert.NoError(t, err)
}

func TestManager_WithMemoryStore(t *testing.T) {
	h := newHarness(t, session.Config{}, func(*sqlstore.DB) repository.SessionRepository {
		return session.NewMemoryStore(100, 24*time.Hour)
	})
	rec, _ := h.login(t)

	state, err := h.manager.Restore(context.Background(), carry(rec))
	require.NoError(t, err)
	assert.True(t, state.Authenticated())
}
