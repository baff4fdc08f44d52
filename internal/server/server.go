// Package server is the composition root: it opens the database, builds
// every service, and mounts the routes.
//
// DEPENDENCY FLOW:
//
//	config ─► sqlstore.DB ─► PasswordService, Verifier, RegistrationValidator
//	                       ─► session.Manager (+ store, clock, token signer)
//	                       ─► AccountService, BoardService
//	                       ─► handler.Handler ─► chi routes
//
// Nothing below this package constructs its own dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/thejerf/abtime"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/members-only/internal/auth"
	"github.com/sakif/members-only/internal/config"
	"github.com/sakif/members-only/internal/gate"
	"github.com/sakif/members-only/internal/handler"
	"github.com/sakif/members-only/internal/metrics"
	"github.com/sakif/members-only/internal/middleware"
	"github.com/sakif/members-only/internal/repository"
	"github.com/sakif/members-only/internal/repository/sqlstore"
	"github.com/sakif/members-only/internal/service"
	"github.com/sakif/members-only/internal/session"
	"github.com/sakif/members-only/internal/view"
)

// Server owns the router and the resources behind it.
type Server struct {
	router   *chi.Mux
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqlstore.DB
	sessions *session.Manager
	metrics  *metrics.Metrics
}

// Option customizes New.
type Option func(*options)

type options struct {
	clock abtime.AbstractTime
}

// WithClock replaces the real clock, for tests that need to move time.
func WithClock(clock abtime.AbstractTime) Option {
	return func(o *options) { o.clock = clock }
}

// New opens the database and wires the whole application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{clock: abtime.NewRealTime()}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := OpenDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
	}

	if err := s.setupRoutes(o.clock); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// OpenDB opens the configured database. A SQLite file's directory is
// created if needed. Also used by the migrate and promote commands.
func OpenDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sqlstore.DB, error) {
	dialect := sqlstore.Dialect(cfg.DB.Driver)
	if dialect == sqlstore.DialectSQLite && cfg.DB.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("server: creating database directory: %w", err)
		}
	}

	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:          dialect,
		DSN:             cfg.DB.DSN,
		AutoMigrate:     cfg.DB.AutoMigrate,
		ConnectAttempts: cfg.DB.ConnectAttempts,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}
	return db, nil
}

// NewAccountService builds the account service on db. Shared with the
// operator CLI so both apply the same rules.
func NewAccountService(cfg *config.Config, db *sqlstore.DB, passwords *auth.PasswordService, logger *slog.Logger) *service.AccountService {
	users := db.Users()
	validator := auth.NewRegistrationValidator(users, passwords, logger)
	return service.NewAccountService(users, validator, clubConfig(cfg), logger)
}

func clubConfig(cfg *config.Config) service.ClubConfig {
	return service.ClubConfig{
		MemberPasscode:   cfg.Club.MemberPasscode,
		AdminPasscode:    cfg.Club.AdminPasscode,
		PermissiveDelete: cfg.Club.PermissiveDelete,
	}
}

func (s *Server) sessionStore() repository.SessionRepository {
	if s.cfg.Session.Store == "memory" {
		return session.NewMemoryStore(s.cfg.Session.MemorySize, s.cfg.Session.TTL)
	}
	return s.db.Sessions()
}

// setupRoutes wires every dependency and mounts the routes.
//
// MIDDLEWARE ORDER:
//  1. RequestID, RealIP: tag the request
//  2. Logger: logs and measures everything below it
//  3. Recoverer: turns a panic into a 500 that the logger still sees
//  4. LoadSession: restores the session (page routes only)
func (s *Server) setupRoutes(clock abtime.AbstractTime) error {
	passwords := auth.NewPasswordService(s.cfg.Auth.BcryptCost, s.cfg.Auth.HashConcurrency)
	tokens, err := auth.NewTokenService(s.cfg.Session.Secret)
	if err != nil {
		return err
	}

	users := s.db.Users()
	verifier := auth.NewVerifier(users, passwords, s.logger)
	s.sessions = session.NewManager(s.sessionStore(), users, verifier, tokens, clock, session.Config{
		TTL:                s.cfg.Session.TTL,
		CookieName:         s.cfg.Session.CookieName,
		CookieSecure:       s.cfg.Session.CookieSecure,
		GenericLoginErrors: s.cfg.Session.GenericLoginErrors,
	}, s.logger)

	accounts := NewAccountService(s.cfg, s.db, passwords, s.logger)
	board := service.NewBoardService(s.db.Messages(), clubConfig(s.cfg), s.logger)

	views, err := view.New()
	if err != nil {
		return err
	}

	h := handler.New(handler.Deps{
		Views:    views,
		Sessions: s.sessions,
		Accounts: accounts,
		Board:    board,
		Metrics:  s.metrics,
		Logger:   s.logger,
	})

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger, s.metrics))
	r.Use(chimiddleware.Recoverer)

	// === Infrastructure (no session) ===
	r.Get("/healthz", handler.HandleHealth(s.db))
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(view.Static()))))

	// === Pages ===
	r.Group(func(r chi.Router) {
		r.Use(gate.LoadSession(s.sessions, h.RenderError))
		// Registered inside the group so the 404 page knows who is logged in.
		r.NotFound(h.NotFound)

		r.Get("/", h.HandleHome)
		r.Get("/sign-up", h.HandleSignUpForm)
		r.Post("/sign-up", h.HandleSignUp)
		r.Post("/log-in", h.HandleLogin)
		r.Get("/log-out", h.HandleLogout)
		r.Post("/log-out", h.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAuthenticated)

			r.Get("/join-club", h.HandleJoinClubForm)
			r.Post("/join-club", h.HandleJoinClub)
			r.Get("/admin", h.HandleAdminForm)
			r.Post("/admin", h.HandleBecomeAdmin)
			r.Get("/messages/new", h.HandleNewMessageForm)
			r.Post("/messages", h.HandlePostMessage)
			r.Post("/messages/{id}/delete", h.HandleDeleteMessage)
		})
	})

	return nil
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully: stop accepting connections, let in-flight requests
// finish within the shutdown timeout, stop the session sweeper, close the
// database.
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.cfg.DB.Driver),
			slog.String("sessions", s.cfg.Session.Store),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.sessions.RunSweeper(gctx, s.cfg.Session.SweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
