package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/celestia-booking/internal/booking"
)

// ReaderRepo resolves the active reader from the single-row
// active_reader table.
type ReaderRepo struct{ db *sql.DB }

func NewReaderRepo(db *sql.DB) *ReaderRepo { return &ReaderRepo{db: db} }

var _ booking.ReaderResolver = (*ReaderRepo)(nil)

// ActiveReader returns the configured reader's user id, or
// booking.ErrNoReaderAvailable when the table is empty.
func (r *ReaderRepo) ActiveReader(ctx context.Context) (uint64, error) {
	var id uint64
	err := r.db.QueryRowContext(ctx, `SELECT reader_id FROM active_reader WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, booking.ErrNoReaderAvailable
	}
	if err != nil {
		return 0, transient(err)
	}
	return id, nil
}

// SetActive makes readerID the reader that new bookings are assigned to.
func (r *ReaderRepo) SetActive(ctx context.Context, readerID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO active_reader (id, reader_id) VALUES (1, ?)
         ON DUPLICATE KEY UPDATE reader_id = VALUES(reader_id)`, readerID)
	return err
}
