package model

import "time"

// Message is a post on the board.
//
// AuthorFirstName and AuthorLastName are not columns of the messages table.
// They are filled by the listing query's join on users so the home page can
// render author names without a lookup per row.
type Message struct {
	ID        string    `json:"id"        db:"id"`
	Title     string    `json:"title"     db:"title"`
	Text      string    `json:"text"      db:"text"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	AuthorID  string    `json:"authorId"  db:"author_id"`

	AuthorFirstName string `json:"-" db:"author_first_name"`
	AuthorLastName  string `json:"-" db:"author_last_name"`
}

// AuthorName is the author's full name, or "" when the message was loaded
// without the author join.
func (m *Message) AuthorName() string {
	if m.AuthorFirstName == "" && m.AuthorLastName == "" {
		return ""
	}
	return m.AuthorFirstName + " " + m.AuthorLastName
}
