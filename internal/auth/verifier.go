package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
)

// Sanitize trims surrounding whitespace and HTML-escapes s. Every text
// field that reaches the user store goes through it, and login applies it to
// the submitted credentials so they compare equal to what sign-up stored.
func Sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// RejectReason says why a login was refused. It is logged, and by default
// also shown to the user.
type RejectReason string

const (
	ReasonUnknownIdentifier RejectReason = "unknown-identifier"
	ReasonIncorrectPassword RejectReason = "incorrect-password"
)

// ErrRejected matches every *RejectedError.
var ErrRejected = errors.New("auth: credentials rejected")

// RejectedError is returned by Verifier.Verify when the credentials do not
// identify a user. It is an expected outcome, not a fault.
type RejectedError struct {
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("auth: credentials rejected (%s)", e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// GenericLoginMessage is shown for both reasons when messages are collapsed.
const GenericLoginMessage = "Incorrect email or password"

// Message is the text shown to the user. With generic=false the two reasons
// get distinct messages, which reveals whether an email is registered.
func (e *RejectedError) Message(generic bool) string {
	if generic {
		return GenericLoginMessage
	}
	if e.Reason == ReasonUnknownIdentifier {
		return "Incorrect email"
	}
	return "Incorrect password"
}

// Verifier checks submitted credentials against the user store.
type Verifier struct {
	users     repository.UserRepository
	passwords *PasswordService
	logger    *slog.Logger
}

func NewVerifier(users repository.UserRepository, passwords *PasswordService, logger *slog.Logger) *Verifier {
	return &Verifier{users: users, passwords: passwords, logger: logger}
}

// Verify returns the full user record when email and password match.
//
// Outcomes:
//   - match: the user, nil
//   - no user with that exact email: nil, *RejectedError{ReasonUnknownIdentifier}
//   - wrong password: nil, *RejectedError{ReasonIncorrectPassword}
//   - store or hash failure: nil, wrapped error (never a rejection)
//
// The plaintext password is never logged.
func (v *Verifier) Verify(ctx context.Context, email, password string) (*model.User, error) {
	email = Sanitize(email)
	password = Sanitize(password)

	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			v.logger.Info("login rejected",
				slog.String("email", email),
				slog.String("reason", string(ReasonUnknownIdentifier)),
			)
			return nil, &RejectedError{Reason: ReasonUnknownIdentifier}
		}
		return nil, fmt.Errorf("auth: looking up user: %w", err)
	}

	if err := v.passwords.Verify(ctx, user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			v.logger.Info("login rejected",
				slog.String("email", email),
				slog.String("reason", string(ReasonIncorrectPassword)),
			)
			return nil, &RejectedError{Reason: ReasonIncorrectPassword}
		}
		return nil, fmt.Errorf("auth: verifying password for user %s: %w", user.ID, err)
	}

	return user, nil
}
