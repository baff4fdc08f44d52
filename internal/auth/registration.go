package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/repository"
)

// Form field names. They double as the Field of each validation error so
// the template can attach messages to inputs.
const (
	FieldFirstName  = "firstName"
	FieldLastName   = "lastName"
	FieldEmail      = "email"
	FieldPassword   = "pwd"
	FieldPwdConfirm = "pwdConfirm"
)

const minPasswordLength = 8

// Messages shown on the sign-up form.
const (
	MsgFirstNameRequired = "First name required"
	MsgLastNameRequired  = "Last name required"
	MsgEmailRequired     = "E-mail required"
	MsgEmailInvalid      = "Invalid e-mail address"
	MsgEmailInUse        = "E-mail already in use"
	MsgPasswordRequired  = "Password required"
	MsgPasswordTooShort  = "Password must be at least 8 characters"
	MsgPasswordTooLong   = "Password is too long: 72 bytes at most, and each of & < > \" ' counts as several"
	MsgPasswordMismatch  = "Passwords don't match"
)

// SignUpInput is the raw sign-up form.
type SignUpInput struct {
	FirstName  string
	LastName   string
	Email      string
	Pwd        string
	PwdConfirm string
}

// NewUser is a validated registration, ready to insert. PasswordHash is a
// bcrypt hash of the sanitized password.
type NewUser struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
}

// RegistrationValidator turns a SignUpInput into a NewUser or a complete
// list of field errors.
type RegistrationValidator struct {
	users     repository.UserRepository
	passwords *PasswordService
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewRegistrationValidator(users repository.UserRepository, passwords *PasswordService, logger *slog.Logger) *RegistrationValidator {
	return &RegistrationValidator{
		users:     users,
		passwords: passwords,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Validate checks every rule and never stops at the first failure.
//
// The email uniqueness lookup goes to the store, so it runs in its own
// goroutine while the in-memory rules are checked; both finish before the
// result is decided. Errors come back in form order:
// firstName, lastName, email, pwd, pwdConfirm.
//
// On failure the error is *apperror.ValidationErrors. A store failure during
// the uniqueness lookup is returned as-is (wrapped), not as a validation
// error. Nothing is hashed unless every rule passes.
func (rv *RegistrationValidator) Validate(ctx context.Context, in SignUpInput) (*NewUser, error) {
	first := Sanitize(in.FirstName)
	last := Sanitize(in.LastName)
	email := Sanitize(in.Email)
	pwdTrimmed := strings.TrimSpace(in.Pwd)
	confirmTrimmed := strings.TrimSpace(in.PwdConfirm)
	pwd := Sanitize(in.Pwd)

	// Grammar is checked on what the user typed; the escaped form is what
	// gets stored and looked up.
	emailFormatOK := email != "" && rv.validate.Var(strings.TrimSpace(in.Email), "email") == nil

	g, gctx := errgroup.WithContext(ctx)
	var emailTaken bool
	if emailFormatOK {
		g.Go(func() error {
			_, err := rv.users.GetByEmail(gctx, email)
			switch {
			case err == nil:
				emailTaken = true
				return nil
			case errors.Is(err, apperror.ErrNotFound):
				return nil
			default:
				return fmt.Errorf("auth: checking email uniqueness: %w", err)
			}
		})
	}

	var verrs apperror.ValidationErrors

	if first == "" {
		verrs.Add(FieldFirstName, MsgFirstNameRequired)
	}
	if last == "" {
		verrs.Add(FieldLastName, MsgLastNameRequired)
	}

	var emailErr string
	switch {
	case email == "":
		emailErr = MsgEmailRequired
	case !emailFormatOK:
		emailErr = MsgEmailInvalid
	}

	var pwdErr string
	switch {
	case pwdTrimmed == "":
		pwdErr = MsgPasswordRequired
	case rv.validate.Var(pwdTrimmed, fmt.Sprintf("min=%d", minPasswordLength)) != nil:
		pwdErr = MsgPasswordTooShort
	// The escaped form is what gets hashed, so escaping counts toward
	// bcrypt's limit.
	case len(pwd) > maxPasswordBytes:
		pwdErr = MsgPasswordTooLong
	}

	// Compared on the trimmed input, before escaping.
	confirmMismatch := pwdTrimmed != confirmTrimmed

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if emailErr != "" {
		verrs.Add(FieldEmail, emailErr)
	}
	if emailTaken {
		verrs.Add(FieldEmail, MsgEmailInUse)
	}
	if pwdErr != "" {
		verrs.Add(FieldPassword, pwdErr)
	}
	if confirmMismatch {
		verrs.Add(FieldPwdConfirm, MsgPasswordMismatch)
	}

	if err := verrs.Err(); err != nil {
		rv.logger.Debug("sign-up rejected", slog.Any("fields", fieldsOf(&verrs)))
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := rv.passwords.Hash(ctx, pwd)
	if err != nil {
		return nil, fmt.Errorf("auth: hashing new password: %w", err)
	}

	return &NewUser{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: hash,
	}, nil
}

func fieldsOf(v *apperror.ValidationErrors) []string {
	out := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		out = append(out, e.Field)
	}
	return out
}
