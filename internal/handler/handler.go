// Package handler contains the HTTP handlers for the board's pages.
//
// Handlers are glue: they parse the form, call a service, and then either
// redirect (303 See Other, so a reload never re-submits) or render a page.
// They never decide who may do what; gate and the services do.
//
// Every handler runs behind gate.LoadSession, so gate.StateFrom(ctx) is
// always the restored session.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/members-only/internal/gate"
	"github.com/sakif/members-only/internal/metrics"
	"github.com/sakif/members-only/internal/service"
	"github.com/sakif/members-only/internal/session"
	"github.com/sakif/members-only/internal/view"
)

// Handler serves every page of the board.
type Handler struct {
	views    *view.Templates
	sessions *session.Manager
	accounts *service.AccountService
	board    *service.BoardService
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Deps lists what New needs. Metrics may be nil.
type Deps struct {
	Views    *view.Templates
	Sessions *session.Manager
	Accounts *service.AccountService
	Board    *service.BoardService
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		views:    d.Views,
		sessions: d.Sessions,
		accounts: d.Accounts,
		board:    d.Board,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}
}

// page starts the template data for r: the current user and any pending
// flash messages, which are consumed here.
func (h *Handler) page(r *http.Request, title string) (*view.Page, error) {
	state := gate.StateFrom(r.Context())
	flash, err := h.sessions.PopFlash(r.Context(), state)
	if err != nil {
		return nil, err
	}
	return &view.Page{
		Title: title,
		User:  state.User,
		Flash: flash,
	}, nil
}

// render writes p, or the error page when rendering fails.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, p *view.Page) {
	if err := h.views.Render(w, status, name, p); err != nil {
		h.RenderError(w, r, err)
	}
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
