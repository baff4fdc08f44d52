package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/auth"
	"github.com/sakif/members-only/internal/gate"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
)

// Message limits, counted in characters of the trimmed input.
const (
	MaxTitleLength   = 100
	MaxTextLength    = 2000
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Form fields and messages of the new-message form.
const (
	FieldTitle = "title"
	FieldText  = "text"

	MsgTitleRequired = "Title required"
	MsgTitleTooLong  = "Title must be 100 characters or fewer"
	MsgTextRequired  = "Message required"
	MsgTextTooLong   = "Message must be 2000 characters or fewer"
)

// BoardService handles the message board itself.
type BoardService struct {
	messages repository.MessageRepository
	club     ClubConfig
	now      func() time.Time
	logger   *slog.Logger
}

func NewBoardService(messages repository.MessageRepository, club ClubConfig, logger *slog.Logger) *BoardService {
	return &BoardService{
		messages: messages,
		club:     club,
		now:      time.Now,
		logger:   logger,
	}
}

// List returns the board newest first, as viewer may see it.
//
// VISIBILITY:
// Everyone, including anonymous visitors, sees titles and text. Only
// members and admins see who wrote a message and when; for everyone else
// the author and timestamp are stripped here, before any template sees
// them.
func (s *BoardService) List(ctx context.Context, viewer *model.User, opts repository.ListOptions) ([]model.Message, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	msgs, err := s.messages.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/board: listing messages: %w", err)
	}

	if !gate.CanSeeAuthors(viewer) {
		for i := range msgs {
			msgs[i].AuthorID = ""
			msgs[i].AuthorFirstName = ""
			msgs[i].AuthorLastName = ""
			msgs[i].Timestamp = time.Time{}
		}
	}
	return msgs, nil
}

// Post validates and stores a new message by author.
// Every logged-in user may post; membership only affects what they see.
func (s *BoardService) Post(ctx context.Context, author *model.User, title, text string) (*model.Message, error) {
	if !gate.CanPostMessage(author) {
		return nil, apperror.Unauthorized("log in to post a message")
	}

	var verrs apperror.ValidationErrors
	if msg := checkLength(title, MaxTitleLength, MsgTitleRequired, MsgTitleTooLong); msg != "" {
		verrs.Add(FieldTitle, msg)
	}
	if msg := checkLength(text, MaxTextLength, MsgTextRequired, MsgTextTooLong); msg != "" {
		verrs.Add(FieldText, msg)
	}
	if err := verrs.Err(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg := &model.Message{
		Title:     auth.Sanitize(title),
		Text:      auth.Sanitize(text),
		Timestamp: s.now().UTC(),
		AuthorID:  author.ID,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("service/board: creating message: %w", err)
	}

	s.logger.Info("message posted",
		slog.String("id", msg.ID),
		slog.String("authorID", author.ID),
	)
	return msg, nil
}

// Delete removes a message when actor is an admin.
//
// For anyone else the outcome depends on ClubConfig.PermissiveDelete: a
// silent nil (the board's long-standing behavior) or an apperror.Forbidden.
// Deleting a message that is already gone is not an error.
func (s *BoardService) Delete(ctx context.Context, actor *model.User, id string) error {
	id = strings.TrimSpace(id)

	if !gate.CanDeleteMessage(actor) {
		actorID := ""
		if actor != nil {
			actorID = actor.ID
		}
		if s.club.PermissiveDelete {
			s.logger.Info("ignoring delete by non-admin",
				slog.String("messageID", id),
				slog.String("userID", actorID),
			)
			return nil
		}
		return apperror.Forbidden("only admins can delete messages")
	}

	if id == "" {
		return apperror.ValidationFailed("id", "message ID is required")
	}

	if err := s.messages.Delete(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Debug("message already deleted", slog.String("messageID", id))
			return nil
		}
		return fmt.Errorf("service/board: deleting message %s: %w", id, err)
	}

	s.logger.Info("message deleted",
		slog.String("messageID", id),
		slog.String("userID", actor.ID),
	)
	return nil
}

func checkLength(raw string, limit int, required, tooLong string) string {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return required
	case utf8.RuneCountInString(trimmed) > limit:
		return tooLong
	}
	return ""
}
