package booking

import (
	"context"
	"time"

	"github.com/iliyamo/celestia-booking/internal/model"
)

// SessionQuerier returns the blocking sessions of a reader that overlap
// [from, to).  Implementations may return a superset; the availability
// index re-checks status and overlap itself.
type SessionQuerier interface {
	ListBlocking(ctx context.Context, readerID uint64, from, to time.Time) ([]model.Session, error)
}

// SessionTx is the view of the store available inside a reader lock.
// Reads made through it observe the writes of the same transaction.
type SessionTx interface {
	SessionQuerier
	// GetForUpdate loads a session and holds it for the rest of the tx.
	GetForUpdate(ctx context.Context, id string) (*model.Session, error)
	// Insert persists a new session.  ID, CreatedAt and UpdatedAt are set
	// by the caller.
	Insert(ctx context.Context, s *model.Session) error
	// Update writes the mutable columns: status, start_at, end_at,
	// payment_ref and updated_at.
	Update(ctx context.Context, s *model.Session) error
}

// SessionFilter narrows List results.  Zero values mean "any".
type SessionFilter struct {
	ClientID uint64
	ReaderID uint64
	Statuses []model.SessionStatus
	From     time.Time
	To       time.Time
	Limit    int
}

// SessionStore is the durable home of sessions.
type SessionStore interface {
	SessionQuerier
	GetByID(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context, f SessionFilter) ([]model.Session, error)
	Delete(ctx context.Context, id string) error
	// WithReaderLock runs fn while holding the reader's scheduling lock.
	// Concurrent calls for the same reader, from any process sharing the
	// store, are serialized.  fn's writes commit only if fn returns nil.
	WithReaderLock(ctx context.Context, readerID uint64, fn func(tx SessionTx) error) error
}

// ReaderResolver yields the reader that new bookings are assigned to.
type ReaderResolver interface {
	ActiveReader(ctx context.Context) (uint64, error)
}

// StaticReader resolves to a fixed, configured reader id.  Zero means
// no reader is configured.
type StaticReader uint64

// ActiveReader implements ReaderResolver.
func (r StaticReader) ActiveReader(context.Context) (uint64, error) {
	if r == 0 {
		return 0, ErrNoReaderAvailable
	}
	return uint64(r), nil
}

// EventKind names a notification emitted by the core.
type EventKind string

const (
	EventBookingCreated   EventKind = "booking.created"
	EventPaymentConfirmed EventKind = "payment.confirmed"
	EventStatusChanged    EventKind = "session.status_changed"
	EventRescheduled      EventKind = "session.rescheduled"
)

// Notifier dispatches session events.  Delivery is best effort from the
// core's point of view; errors are logged by the caller.
type Notifier interface {
	Notify(ctx context.Context, kind EventKind, s model.Session) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, kind EventKind, s model.Session) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, kind EventKind, s model.Session) error {
	return f(ctx, kind, s)
}
