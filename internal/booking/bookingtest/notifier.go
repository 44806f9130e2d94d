package bookingtest

import (
	"context"
	"sync"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/model"
)

// Event is one notification captured by Recorder.
type Event struct {
	Kind    booking.EventKind
	Session model.Session
}

// Recorder is a booking.Notifier that keeps every event it receives.
// Err, when set, is returned from Notify after the event is recorded.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

// Notify implements booking.Notifier.
func (r *Recorder) Notify(_ context.Context, kind booking.EventKind, s model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: kind, Session: s})
	return r.Err
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in arrival order.
func (r *Recorder) Kinds() []booking.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]booking.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}
