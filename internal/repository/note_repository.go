package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/celestia-booking/internal/model"
)

// NoteRepo stores session notes.
type NoteRepo struct{ db *sql.DB }

func NewNoteRepo(db *sql.DB) *NoteRepo { return &NoteRepo{db: db} }

// Create inserts a note.  ID and CreatedAt are set by the caller.
func (r *NoteRepo) Create(ctx context.Context, n *model.SessionNote) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_notes (id, session_id, author_id, author_role, content, visible_to_client, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.SessionID, n.AuthorID, n.AuthorRole, n.Content, n.VisibleToClient, n.CreatedAt.UTC())
	return err
}

// ListBySession returns a session's notes, oldest first.  With
// clientView set, reader notes not shared with the client are left out.
func (r *NoteRepo) ListBySession(ctx context.Context, sessionID string, clientView bool) ([]model.SessionNote, error) {
	q := `SELECT id, session_id, author_id, author_role, content, visible_to_client, created_at
            FROM session_notes
           WHERE session_id = ?`
	if clientView {
		q += ` AND (author_role = 'CLIENT' OR visible_to_client = 1)`
	}
	q += ` ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SessionNote{}
	for rows.Next() {
		var n model.SessionNote
		if err := rows.Scan(&n.ID, &n.SessionID, &n.AuthorID, &n.AuthorRole, &n.Content, &n.VisibleToClient, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}
