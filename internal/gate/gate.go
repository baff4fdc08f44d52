// Package gate decides who may reach which route.
//
// Authorization happens in two stages:
//
//  1. A route-level gate (RequireAuthenticated) admits any logged-in user and
//     silently redirects everyone else to the home page.
//  2. Each action then asks a predicate (CanDeleteMessage, CanJoinClub, ...)
//     about the specific user it is acting for.
//
// The session state travels in the request context. LoadSession puts it
// there once per request; handlers read it back with StateFrom or
// CurrentUser.
package gate

import (
	"context"
	"net/http"

	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/session"
)

// contextKey keeps our context values out of reach of other packages.
type contextKey string

const stateKey contextKey = "sessionState"

// Restorer rebuilds the session state for a request.
// *session.Manager satisfies it.
type Restorer interface {
	Restore(ctx context.Context, r *http.Request) (*session.State, error)
}

// ErrorFunc renders an unexpected failure. The handler package supplies its
// error page here.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// LoadSession restores the session on every request and stores the State in
// the context. A store failure goes to onError and the chain stops.
func LoadSession(sessions Restorer, onError ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, err := sessions.Restore(r.Context(), r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithState(r.Context(), state)))
		})
	}
}

// RequireAuthenticated admits requests that carry an identity. Everyone else
// gets a 303 to "/" with no body and no error message.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !StateFrom(r.Context()).Authenticated() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithState returns a copy of ctx carrying state.
func WithState(ctx context.Context, state *session.State) context.Context {
	return context.WithValue(ctx, stateKey, state)
}

// StateFrom returns the request's session state. Without LoadSession in the
// chain it returns an empty, anonymous State, never nil.
func StateFrom(ctx context.Context) *session.State {
	if s, ok := ctx.Value(stateKey).(*session.State); ok && s != nil {
		return s
	}
	return &session.State{}
}

// CurrentUser returns the logged-in user, or nil for anonymous requests.
func CurrentUser(ctx context.Context) *model.User {
	return StateFrom(ctx).User
}
