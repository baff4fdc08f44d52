// Package service contains the business logic layer of the board.
//
// THE LAYERS:
//
//	Handler (HTTP)      → parses forms, picks a page or a redirect
//	Service (business)  → enforces the board's rules, orchestrates stores
//	Repository (data)   → reads and writes rows
//
// Services take plain values and model types, never *http.Request, so the
// same rules serve the HTTP handlers and the operator CLI. They return
// apperror values; the handler decides what each one looks like to the
// browser.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/auth"
	"github.com/sakif/members-only/internal/gate"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
)

// FieldPasscode is the form field of the join-club and admin forms.
const FieldPasscode = "passcode"

// MsgWrongPasscode is shown when a passcode does not match.
const MsgWrongPasscode = "Incorrect passcode"

// ClubConfig holds the club's rules that come from configuration.
type ClubConfig struct {
	// MemberPasscode unlocks membership.
	MemberPasscode string
	// AdminPasscode unlocks admin status. Empty disables the form; admins
	// are then created with the promote command only.
	AdminPasscode string
	// PermissiveDelete makes a non-admin delete a silent no-op instead of a
	// Forbidden error.
	PermissiveDelete bool
}

// AccountService handles registration and role changes.
type AccountService struct {
	users     repository.UserRepository
	validator *auth.RegistrationValidator
	club      ClubConfig
	logger    *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	validator *auth.RegistrationValidator,
	club ClubConfig,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		validator: validator,
		club:      club,
		logger:    logger,
	}
}

// Register validates the sign-up form and creates the account.
//
// Validation failures come back as *apperror.ValidationErrors. If another
// registration with the same email wins the race between the uniqueness
// check and the insert, the store's conflict is reported as the same
// "E-mail already in use" field error.
//
// Registration does not log the user in.
func (s *AccountService) Register(ctx context.Context, in auth.SignUpInput) (*model.User, error) {
	nu, err := s.validator.Validate(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user := &model.User{
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			var verrs apperror.ValidationErrors
			verrs.Add(auth.FieldEmail, auth.MsgEmailInUse)
			return nil, &verrs
		}
		return nil, fmt.Errorf("service/account: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// JoinClub makes user a member when passcode matches. Joining twice is a
// no-op. Only the member flag is written; the returned user is re-read from
// the store.
func (s *AccountService) JoinClub(ctx context.Context, user *model.User, passcode string) (*model.User, error) {
	if user == nil {
		return nil, apperror.Unauthorized("log in to join the club")
	}
	if !gate.CanJoinClub(user) {
		return user, nil
	}
	if !passcodeMatches(s.club.MemberPasscode, passcode) {
		return nil, apperror.ValidationFailed(FieldPasscode, MsgWrongPasscode)
	}

	if err := s.users.SetMember(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("service/account: granting membership to %s: %w", user.ID, err)
	}

	s.logger.Info("user joined the club", slog.String("userID", user.ID))
	return s.reload(ctx, user.ID)
}

// BecomeAdmin makes user an admin when passcode matches the admin passcode.
// With no admin passcode configured it always returns a Forbidden error.
func (s *AccountService) BecomeAdmin(ctx context.Context, user *model.User, passcode string) (*model.User, error) {
	if user == nil {
		return nil, apperror.Unauthorized("log in to become an admin")
	}
	if !gate.CanBecomeAdmin(user) {
		return user, nil
	}
	if !s.AdminPromotionEnabled() {
		return nil, apperror.Forbidden("admin promotion is disabled")
	}
	if !passcodeMatches(s.club.AdminPasscode, passcode) {
		return nil, apperror.ValidationFailed(FieldPasscode, MsgWrongPasscode)
	}

	if err := s.users.SetAdmin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("service/account: granting admin to %s: %w", user.ID, err)
	}

	s.logger.Info("user became admin", slog.String("userID", user.ID))
	return s.reload(ctx, user.ID)
}

// AdminPromotionEnabled reports whether the admin form accepts passcodes.
func (s *AccountService) AdminPromotionEnabled() bool {
	return s.club.AdminPasscode != ""
}

// Promote makes the account with the given email an admin without a
// passcode. It backs the operator CLI.
func (s *AccountService) Promote(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, auth.Sanitize(email))
	if err != nil {
		return nil, fmt.Errorf("service/account: finding %q: %w", email, err)
	}
	if user.IsAdmin {
		return user, nil
	}

	if err := s.users.SetAdmin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("service/account: promoting %s: %w", user.ID, err)
	}

	s.logger.Info("user promoted to admin by operator", slog.String("userID", user.ID))
	return s.reload(ctx, user.ID)
}

// reload re-reads a user after a role change so callers see every flag as
// stored, including changes made by other requests.
func (s *AccountService) reload(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/account: reloading %s: %w", id, err)
	}
	return user, nil
}

func passcodeMatches(want, got string) bool {
	if want == "" {
		return false
	}
	got = strings.TrimSpace(got)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
