package handler

// ERROR BOUNDARY:
// Services return apperror values; this file is the one place that turns
// them into HTTP. Expected outcomes (a bad form, a wrong password) never
// reach here: the handlers deal with those inline. Whatever does reach
// here is rendered as an error page:
//
//	ErrValidation   → 400 (a request no form could have sent)
//	ErrNotFound     → 404
//	ErrForbidden    → 403
//	ErrUnauthorized → 303 to "/" (same as the gate)
//	anything else   → 500 "Something went wrong", logged at Error
//
// Internal error text never reaches the browser.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/gate"
	"github.com/sakif/members-only/internal/view"
)

// RenderError renders the error page for err. Its signature matches
// gate.ErrorFunc so the session middleware can use it too.
func (h *Handler) RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Something went wrong"

	var appErr *apperror.AppError
	switch {
	case errors.Is(err, apperror.ErrUnauthorized):
		redirectHome(w, r)
		return
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		message = "Bad request"
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		message = "Page not found"
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
		message = "You are not allowed to do that"
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	} else {
		h.logger.Debug("request refused",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}

	p := &view.Page{
		Title:   message,
		User:    gate.CurrentUser(r.Context()),
		Status:  status,
		Message: message,
	}
	if rerr := h.views.Render(w, status, view.PageError, p); rerr != nil {
		h.logger.Error("failed to render error page", slog.String("error", rerr.Error()))
		http.Error(w, message, status)
	}
}

// NotFound renders the 404 page for unmatched routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.RenderError(w, r, apperror.NotFound("page", r.URL.Path))
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}
