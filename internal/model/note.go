package model

import "time"

// SessionNote is a free-text note attached to a session.  Clients write
// personal notes which only they and the reader can read.  The reader
// writes notes that are hidden from the client unless VisibleToClient is
// set.
type SessionNote struct {
	ID              string    `json:"id"`                // session_notes.id
	SessionID       string    `json:"session_id"`        // session_notes.session_id
	AuthorID        uint64    `json:"author_id"`         // session_notes.author_id
	AuthorRole      string    `json:"author_role"`       // session_notes.author_role
	Content         string    `json:"content"`           // session_notes.content
	VisibleToClient bool      `json:"visible_to_client"` // session_notes.visible_to_client
	CreatedAt       time.Time `json:"created_at"`        // session_notes.created_at
}
