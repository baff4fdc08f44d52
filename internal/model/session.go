package model

import (
	"strings"
	"time"
)

// Session is the server-side half of a browser session. The browser only
// ever holds a signed reference to ID.
//
// UserID is the identity reference: empty means anonymous. The user record
// itself is never copied into the session; it is re-read on every request.
type Session struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Flash     []string  `db:"-"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Anonymous reports whether the session carries no identity.
func (s *Session) Anonymous() bool {
	return s.UserID == ""
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// flashSeparator joins flash messages for storage in a single column.
// The unit separator cannot come from form input after HTML escaping.
const flashSeparator = "\x1f"

// EncodeFlash packs Flash into a single string for column storage.
func (s *Session) EncodeFlash() string {
	return strings.Join(s.Flash, flashSeparator)
}

// DecodeFlash is the inverse of EncodeFlash.
func (s *Session) DecodeFlash(raw string) {
	if raw == "" {
		s.Flash = nil
		return
	}
	s.Flash = strings.Split(raw, flashSeparator)
}
