package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/model"
)

// SessionRepo stores sessions in MySQL and implements
// booking.SessionStore.  Reader locks are row locks on the reader's
// users row, held for the duration of a transaction.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a new SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

var _ booking.SessionStore = (*SessionRepo)(nil)

const sessionColumns = `id, client_id, reader_id, service_type, start_at, end_at, status,
       amount_cents, payment_ref, client_message, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var (
		s          model.Session
		status     string
		paymentRef sql.NullString
		message    sql.NullString
	)
	err := row.Scan(&s.ID, &s.ClientID, &s.ReaderID, &s.ServiceType, &s.StartAt, &s.EndAt, &status,
		&s.AmountCents, &paymentRef, &message, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Session{}, err
	}
	s.Status = model.SessionStatus(status)
	if paymentRef.Valid {
		ref := paymentRef.String
		s.PaymentRef = &ref
	}
	if message.Valid {
		msg := message.String
		s.ClientMessage = &msg
	}
	s.StartAt, s.EndAt = s.StartAt.UTC(), s.EndAt.UTC()
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	return s, nil
}

func collectSessions(rows *sql.Rows) ([]model.Session, error) {
	defer rows.Close()
	out := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func getSession(ctx context.Context, q queryer, id string, forUpdate bool) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSession(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrSessionNotFound
	}
	if err != nil {
		return nil, transient(err)
	}
	return &s, nil
}

// listBlocking returns the reader's pending_payment and confirmed
// sessions overlapping [from, to).  It uses idx_sessions_reader_window.
func listBlocking(ctx context.Context, q queryer, readerID uint64, from, to time.Time) ([]model.Session, error) {
	args := []any{readerID}
	marks := make([]string, 0, len(model.BlockingStatuses))
	for _, st := range model.BlockingStatuses {
		marks = append(marks, "?")
		args = append(args, string(st))
	}
	args = append(args, to.UTC(), from.UTC())
	query := `SELECT ` + sessionColumns + `
                FROM sessions
               WHERE reader_id = ? AND status IN (` + strings.Join(marks, ", ") + `)
                 AND start_at < ? AND end_at > ?
               ORDER BY start_at`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient(err)
	}
	out, err := collectSessions(rows)
	return out, transient(err)
}

// ListBlocking implements booking.SessionQuerier.
func (r *SessionRepo) ListBlocking(ctx context.Context, readerID uint64, from, to time.Time) ([]model.Session, error) {
	return listBlocking(ctx, r.db, readerID, from, to)
}

// GetByID returns the session or booking.ErrSessionNotFound.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	return getSession(ctx, r.db, id, false)
}

// List returns sessions matching f ordered by start time.
func (r *SessionRepo) List(ctx context.Context, f booking.SessionFilter) ([]model.Session, error) {
	var (
		where []string
		args  []any
	)
	if f.ClientID != 0 {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.ReaderID != 0 {
		where = append(where, "reader_id = ?")
		args = append(args, f.ReaderID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			marks = append(marks, "?")
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if !f.From.IsZero() {
		where = append(where, "start_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "start_at < ?")
		args = append(args, f.To.UTC())
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_at, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient(err)
	}
	out, err := collectSessions(rows)
	return out, transient(err)
}

// FindByPaymentRef returns the session carrying the given payment
// reference, or booking.ErrSessionNotFound.
func (r *SessionRepo) FindByPaymentRef(ctx context.Context, ref string) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE payment_ref = ? LIMIT 1`, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrSessionNotFound
	}
	if err != nil {
		return nil, transient(err)
	}
	return &s, nil
}

// Delete removes a session and, through the foreign key, its notes.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return transient(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrSessionNotFound
	}
	return nil
}

// WithReaderLock runs fn inside a transaction that holds an exclusive
// lock on the reader's users row.  Other transactions locking the same
// reader, in this process or another, wait until commit or rollback.
func (r *SessionRepo) WithReaderLock(ctx context.Context, readerID uint64, fn func(tx booking.SessionTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return transient(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var locked uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = ? AND role = 'READER' FOR UPDATE`, readerID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ErrReaderNotFound
	}
	if err != nil {
		return transient(err)
	}

	if err := fn(&sessionTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return transient(err)
	}
	committed = true
	return nil
}

// sessionTx is the booking.SessionTx view of an open transaction.
type sessionTx struct {
	tx *sql.Tx
}

func (t *sessionTx) ListBlocking(ctx context.Context, readerID uint64, from, to time.Time) ([]model.Session, error) {
	return listBlocking(ctx, t.tx, readerID, from, to)
}

func (t *sessionTx) GetForUpdate(ctx context.Context, id string) (*model.Session, error) {
	return getSession(ctx, t.tx, id, true)
}

func (t *sessionTx) Insert(ctx context.Context, s *model.Session) error {
	const q = `INSERT INTO sessions (id, client_id, reader_id, service_type, start_at, end_at, status,
                                     amount_cents, payment_ref, client_message, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.tx.ExecContext(ctx, q,
		s.ID, s.ClientID, s.ReaderID, s.ServiceType, s.StartAt.UTC(), s.EndAt.UTC(), string(s.Status),
		s.AmountCents, nullString(s.PaymentRef), nullString(s.ClientMessage), s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	return transient(err)
}

// Update writes the mutable columns only; amount_cents and
// client_message never change after insert.
func (t *sessionTx) Update(ctx context.Context, s *model.Session) error {
	const q = `UPDATE sessions
                  SET status = ?, start_at = ?, end_at = ?, payment_ref = ?, updated_at = ?
                WHERE id = ?`
	_, err := t.tx.ExecContext(ctx, q,
		string(s.Status), s.StartAt.UTC(), s.EndAt.UTC(), nullString(s.PaymentRef), s.UpdatedAt.UTC(), s.ID)
	return transient(err)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
