package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/auth"
	"github.com/sakif/members-only/internal/gate"
	"github.com/sakif/members-only/internal/repository"
	"github.com/sakif/members-only/internal/service"
	"github.com/sakif/members-only/internal/view"
)

// HandleHome shows the board.
//
// HTTP: GET /
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	user := gate.CurrentUser(r.Context())

	msgs, err := h.board.List(r.Context(), user, repository.ListOptions{})
	if err != nil {
		h.RenderError(w, r, err)
		return
	}

	p, err := h.page(r, "Members Only")
	if err != nil {
		h.RenderError(w, r, err)
		return
	}
	p.Messages = msgs
	p.CanSeeAuthors = gate.CanSeeAuthors(user)
	p.CanDelete = gate.CanDeleteMessage(user)
	h.render(w, r, http.StatusOK, view.PageHome, p)
}

// HandleNewMessageForm shows the compose form.
//
// HTTP: GET /messages/new (authenticated)
func (h *Handler) HandleNewMessageForm(w http.ResponseWriter, r *http.Request) {
	p, err := h.page(r, "New message")
	if err != nil {
		h.RenderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, view.PageNewMessage, p)
}

// HandlePostMessage stores a new message.
//
// HTTP: POST /messages (authenticated)
func (h *Handler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.RenderError(w, r, apperror.ValidationFailed("form", "malformed form"))
		return
	}

	title := r.PostFormValue(service.FieldTitle)
	text := r.PostFormValue(service.FieldText)

	_, err := h.board.Post(r.Context(), gate.CurrentUser(r.Context()), title, text)
	if err != nil {
		var verrs *apperror.ValidationErrors
		if errors.As(err, &verrs) {
			p, perr := h.page(r, "New message")
			if perr != nil {
				h.RenderError(w, r, perr)
				return
			}
			p.Errors = verrs
			p.Form = map[string]string{
				service.FieldTitle: auth.Sanitize(title),
				service.FieldText:  auth.Sanitize(text),
			}
			h.render(w, r, http.StatusUnprocessableEntity, view.PageNewMessage, p)
			return
		}
		h.RenderError(w, r, err)
		return
	}
	redirectHome(w, r)
}

// HandleDeleteMessage deletes a message.
//
// HTTP: POST /messages/{id}/delete (authenticated)
//
// Non-admins are either silently sent home or shown 403, depending on the
// board's delete policy; the service decides.
func (h *Handler) HandleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.board.Delete(r.Context(), gate.CurrentUser(r.Context()), id); err != nil {
		h.RenderError(w, r, err)
		return
	}
	redirectHome(w, r)
}
