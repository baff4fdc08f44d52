package handler

import (
	"errors"
	"net/http"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/auth"
	"github.com/sakif/members-only/internal/gate"
	"github.com/sakif/members-only/internal/metrics"
	"github.com/sakif/members-only/internal/view"
)

// MsgRegistered is flashed after a successful sign-up.
const MsgRegistered = "Account created. You can log in now."

// HandleSignUpForm shows the empty sign-up form.
//
// HTTP: GET /sign-up
func (h *Handler) HandleSignUpForm(w http.ResponseWriter, r *http.Request) {
	p, err := h.page(r, "Sign up")
	if err != nil {
		h.RenderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, view.PageSignUp, p)
}

// HandleSignUp registers a new account.
//
// HTTP: POST /sign-up
//
// On success the browser goes home with a flash; the new user still has to
// log in. On a validation failure the form comes back with 422, every field
// error, and the submitted first and last name only.
func (h *Handler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.RenderError(w, r, apperror.ValidationFailed("form", "malformed form"))
		return
	}

	in := auth.SignUpInput{
		FirstName:  r.PostFormValue(auth.FieldFirstName),
		LastName:   r.PostFormValue(auth.FieldLastName),
		Email:      r.PostFormValue(auth.FieldEmail),
		Pwd:        r.PostFormValue(auth.FieldPassword),
		PwdConfirm: r.PostFormValue(auth.FieldPwdConfirm),
	}

	_, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		var verrs *apperror.ValidationErrors
		if errors.As(err, &verrs) {
			p, perr := h.page(r, "Sign up")
			if perr != nil {
				h.RenderError(w, r, perr)
				return
			}
			p.Errors = verrs
			p.Form = map[string]string{
				auth.FieldFirstName: auth.Sanitize(in.FirstName),
				auth.FieldLastName:  auth.Sanitize(in.LastName),
			}
			h.render(w, r, http.StatusUnprocessableEntity, view.PageSignUp, p)
			return
		}
		h.RenderError(w, r, err)
		return
	}

	h.metrics.Registration()
	if err := h.sessions.AddFlash(r.Context(), w, gate.StateFrom(r.Context()), MsgRegistered); err != nil {
		h.RenderError(w, r, err)
		return
	}
	redirectHome(w, r)
}

// HandleLogin checks the credentials posted from the home page.
//
// HTTP: POST /log-in
//
// Success and rejection both redirect home. A rejection leaves its message
// as a flash for the next page; only a store failure shows the error page.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.RenderError(w, r, apperror.ValidationFailed("form", "malformed form"))
		return
	}

	state := gate.StateFrom(r.Context())
	_, err := h.sessions.Login(r.Context(), w, state,
		r.PostFormValue(auth.FieldEmail),
		r.PostFormValue(auth.FieldPassword),
	)
	switch {
	case err == nil:
		h.metrics.Login(metrics.LoginSuccess)
	case errors.Is(err, auth.ErrRejected):
		h.metrics.Login(metrics.LoginRejected)
	default:
		h.metrics.Login(metrics.LoginError)
		h.RenderError(w, r, err)
		return
	}
	redirectHome(w, r)
}

// HandleLogout ends the session. Logging out while anonymous is fine.
//
// HTTP: GET or POST /log-out
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), w, gate.StateFrom(r.Context())); err != nil {
		h.RenderError(w, r, err)
		return
	}
	redirectHome(w, r)
}
