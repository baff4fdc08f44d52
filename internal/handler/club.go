package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/gate"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/service"
	"github.com/sakif/members-only/internal/view"
)

// HandleJoinClubForm shows the membership passcode form.
//
// HTTP: GET /join-club (authenticated)
func (h *Handler) HandleJoinClubForm(w http.ResponseWriter, r *http.Request) {
	h.renderClubForm(w, r, http.StatusOK, view.PageJoinClub, nil)
}

// HandleJoinClub checks the membership passcode.
//
// HTTP: POST /join-club (authenticated)
func (h *Handler) HandleJoinClub(w http.ResponseWriter, r *http.Request) {
	h.grantRole(w, r, view.PageJoinClub, "member", h.accounts.JoinClub)
}

// HandleAdminForm shows the admin passcode form.
//
// HTTP: GET /admin (authenticated)
func (h *Handler) HandleAdminForm(w http.ResponseWriter, r *http.Request) {
	h.renderClubForm(w, r, http.StatusOK, view.PageAdmin, nil)
}

// HandleBecomeAdmin checks the admin passcode.
//
// HTTP: POST /admin (authenticated)
func (h *Handler) HandleBecomeAdmin(w http.ResponseWriter, r *http.Request) {
	h.grantRole(w, r, view.PageAdmin, "admin", h.accounts.BecomeAdmin)
}

type grantFunc func(ctx context.Context, user *model.User, passcode string) (*model.User, error)

// grantRole runs one of the passcode flows. A wrong passcode re-renders the
// form with 422. On success the session's user is re-read so the very next
// page reflects the new role.
func (h *Handler) grantRole(w http.ResponseWriter, r *http.Request, page, role string, grant grantFunc) {
	if err := r.ParseForm(); err != nil {
		h.RenderError(w, r, apperror.ValidationFailed("form", "malformed form"))
		return
	}

	state := gate.StateFrom(r.Context())
	before := *state.User

	updated, err := grant(r.Context(), state.User, r.PostFormValue(service.FieldPasscode))
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			var appErr *apperror.AppError
			var verrs apperror.ValidationErrors
			if errors.As(err, &appErr) {
				verrs.Add(appErr.Field, appErr.Message)
			}
			h.renderClubForm(w, r, http.StatusUnprocessableEntity, page, &verrs)
			return
		}
		h.RenderError(w, r, err)
		return
	}

	if updated.IsMember != before.IsMember || updated.IsAdmin != before.IsAdmin {
		h.metrics.RoleGranted(role)
	}
	if err := h.sessions.Refresh(r.Context(), state); err != nil {
		h.RenderError(w, r, err)
		return
	}
	redirectHome(w, r)
}

func (h *Handler) renderClubForm(w http.ResponseWriter, r *http.Request, status int, name string, verrs *apperror.ValidationErrors) {
	title := "Join the club"
	if name == view.PageAdmin {
		title = "Become an admin"
	}
	p, err := h.page(r, title)
	if err != nil {
		h.RenderError(w, r, err)
		return
	}
	p.Errors = verrs
	p.CanJoinClub = gate.CanJoinClub(p.User)
	p.CanBeAdmin = gate.CanBecomeAdmin(p.User)
	p.AdminEnabled = h.accounts.AdminPromotionEnabled()
	h.render(w, r, status, name, p)
}
