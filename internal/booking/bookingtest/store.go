// Package bookingtest provides in-memory implementations of the booking
// ports for tests.
package bookingtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/model"
)

// Store is an in-memory booking.SessionStore.  Reader locks are real
// mutexes, so concurrent WithReaderLock calls for one reader serialize
// the same way the MySQL row lock does.  Writes made inside a lock are
// staged and only become visible when fn returns nil.
type Store struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	readers  map[uint64]*sync.Mutex

	// Fail, when set, is consulted at the start of every operation with
	// the operation's name ("ListBlocking", "GetByID", "List", "Delete",
	// "WithReaderLock", "GetForUpdate", "Insert", "Update").  A non-nil
	// result is returned as that operation's error.
	Fail func(op string) error
}

// NewStore returns an empty store that knows the given reader ids.
func NewStore(readerIDs ...uint64) *Store {
	s := &Store{
		sessions: map[string]model.Session{},
		readers:  map[uint64]*sync.Mutex{},
	}
	for _, id := range readerIDs {
		s.readers[id] = &sync.Mutex{}
	}
	return s
}

// Seed stores sessions as if they had been committed earlier.
func (s *Store) Seed(sessions ...model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
}

// All returns every stored session ordered by start time.
func (s *Store) All() []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sortByStart(out)
	return out
}

func (s *Store) fail(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Fail != nil {
		return s.Fail(op)
	}
	return nil
}

// ListBlocking implements booking.SessionQuerier.
func (s *Store) ListBlocking(ctx context.Context, readerID uint64, from, to time.Time) ([]model.Session, error) {
	if err := s.fail(ctx, "ListBlocking"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return blocking(s.sessions, nil, readerID, from, to), nil
}

// GetByID implements booking.SessionStore.
func (s *Store) GetByID(ctx context.Context, id string) (*model.Session, error) {
	if err := s.fail(ctx, "GetByID"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, booking.ErrSessionNotFound
	}
	return &sess, nil
}

// List implements booking.SessionStore.
func (s *Store) List(ctx context.Context, f booking.SessionFilter) ([]model.Session, error) {
	if err := s.fail(ctx, "List"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Session{}
	for _, sess := range s.sessions {
		if f.ClientID != 0 && sess.ClientID != f.ClientID {
			continue
		}
		if f.ReaderID != 0 && sess.ReaderID != f.ReaderID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, sess.Status) {
			continue
		}
		if !f.From.IsZero() && sess.StartAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !sess.StartAt.Before(f.To) {
			continue
		}
		out = append(out, sess)
	}
	sortByStart(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Delete implements booking.SessionStore.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.fail(ctx, "Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return booking.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// WithReaderLock implements booking.SessionStore.
func (s *Store) WithReaderLock(ctx context.Context, readerID uint64, fn func(tx booking.SessionTx) error) error {
	if err := s.fail(ctx, "WithReaderLock"); err != nil {
		return err
	}
	s.mu.Lock()
	lock, ok := s.readers[readerID]
	s.mu.Unlock()
	if !ok {
		return booking.ErrReaderNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	tx := &storeTx{store: s, staged: map[string]model.Session{}}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range tx.staged {
		s.sessions[id] = sess
	}
	return nil
}

type storeTx struct {
	store  *Store
	staged map[string]model.Session
}

func (t *storeTx) lookup(id string) (model.Session, bool) {
	if sess, ok := t.staged[id]; ok {
		return sess, true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	sess, ok := t.store.sessions[id]
	return sess, ok
}

func (t *storeTx) ListBlocking(ctx context.Context, readerID uint64, from, to time.Time) ([]model.Session, error) {
	if err := t.store.fail(ctx, "ListBlocking"); err != nil {
		return nil, err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return blocking(t.store.sessions, t.staged, readerID, from, to), nil
}

func (t *storeTx) GetForUpdate(ctx context.Context, id string) (*model.Session, error) {
	if err := t.store.fail(ctx, "GetForUpdate"); err != nil {
		return nil, err
	}
	sess, ok := t.lookup(id)
	if !ok {
		return nil, booking.ErrSessionNotFound
	}
	return &sess, nil
}

func (t *storeTx) Insert(ctx context.Context, sess *model.Session) error {
	if err := t.store.fail(ctx, "Insert"); err != nil {
		return err
	}
	if _, ok := t.lookup(sess.ID); ok {
		return fmt.Errorf("duplicate session id %q", sess.ID)
	}
	t.staged[sess.ID] = *sess
	return nil
}

func (t *storeTx) Update(ctx context.Context, sess *model.Session) error {
	if err := t.store.fail(ctx, "Update"); err != nil {
		return err
	}
	if _, ok := t.lookup(sess.ID); !ok {
		return booking.ErrSessionNotFound
	}
	t.staged[sess.ID] = *sess
	return nil
}

// blocking merges committed and staged rows, staged taking precedence,
// and keeps the blocking sessions of readerID that overlap [from, to).
func blocking(committed, staged map[string]model.Session, readerID uint64, from, to time.Time) []model.Session {
	merged := make(map[string]model.Session, len(committed)+len(staged))
	for id, sess := range committed {
		merged[id] = sess
	}
	for id, sess := range staged {
		merged[id] = sess
	}
	var out []model.Session
	for _, sess := range merged {
		if sess.ReaderID != readerID || !sess.Status.Blocking() {
			continue
		}
		if booking.Overlaps(from, to, sess.StartAt, sess.EndAt) {
			out = append(out, sess)
		}
	}
	sortByStart(out)
	return out
}

func hasStatus(list []model.SessionStatus, st model.SessionStatus) bool {
	for _, v := range list {
		if v == st {
			return true
		}
	}
	return false
}

func sortByStart(s []model.Session) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].StartAt.Equal(s[j].StartAt) {
			return s[i].ID < s[j].ID
		}
		return s[i].StartAt.Before(s[j].StartAt)
	})
}
