// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account on the board.
//
// Email is stored exactly as submitted (after trimming and HTML escaping)
// and compared exactly. The UNIQUE constraint on users.email backs up the
// uniqueness check done at registration.
//
// PasswordHash holds a bcrypt hash and is tagged json:"-" so it can never
// leak through an encoder.
type User struct {
	ID           string    `json:"id"        db:"id"`
	FirstName    string    `json:"firstName" db:"first_name"`
	LastName     string    `json:"lastName"  db:"last_name"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	IsMember     bool      `json:"isMember"  db:"is_member"`
	IsAdmin      bool      `json:"isAdmin"   db:"is_admin"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// FullName is "First Last".
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
