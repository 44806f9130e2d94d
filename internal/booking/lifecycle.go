package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/model"
)

// Lifecycle advances sessions through their status machine:
//
//	pending_payment -> confirmed -> completed | cancelled
//	pending_payment -> declined | cancelled
//
// completed, cancelled and declined are terminal.  Every mutation runs
// under the reader's lock so status changes and reschedules cannot race
// with reservations for the same reader.
type Lifecycle struct {
	validator *Validator
	store     SessionStore
	notifier  Notifier
	log       *zap.Logger
	opts      Options
}

// NewLifecycle wires a lifecycle manager.  notifier may be nil.
func NewLifecycle(store SessionStore, validator *Validator, notifier Notifier, log *zap.Logger, opts Options) *Lifecycle {
	if store == nil || validator == nil {
		panic("nil dependency passed to booking.NewLifecycle")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{
		validator: validator,
		store:     store,
		notifier:  notifier,
		log:       log,
		opts:      opts.withDefaults(),
	}
}

// change is what a mutation decided: whether the row must be written and
// which events to emit once the write is committed.
type change struct {
	dirty  bool
	events []EventKind
}

// StoreTimeout is the bound applied to each store call.
func (m *Lifecycle) StoreTimeout() time.Duration { return m.opts.StoreTimeout }

// MarkPaid confirms a pending_payment session after payment completes.
// Calling it again on a confirmed session succeeds without side effects.
// paymentRef, when non-empty, is stored on the session.
func (m *Lifecycle) MarkPaid(ctx context.Context, id, paymentRef string) (*model.Session, error) {
	return m.mutate(ctx, "mark paid", id, func(_ context.Context, _ SessionTx, s *model.Session) (change, error) {
		switch s.Status {
		case model.StatusConfirmed:
			return change{}, nil
		case model.StatusPendingPayment:
			s.Status = model.StatusConfirmed
			if paymentRef != "" {
				s.PaymentRef = &paymentRef
			}
			return change{dirty: true, events: []EventKind{EventPaymentConfirmed}}, nil
		default:
			return change{}, reject(KindInvalidTransition, "a %s session cannot be marked as paid", s.Status)
		}
	})
}

// SetStatus is the administrative transition.  Any status can be set
// while the session is not terminal.  Leaving a terminal status requires
// override.  Moving a session back into a blocking status re-checks the
// reader's calendar and fails with ErrSlotUnavailable on conflict.
func (m *Lifecycle) SetStatus(ctx context.Context, id string, to model.SessionStatus, override bool) (*model.Session, error) {
	if !to.Valid() {
		return nil, reject(KindInvalidTransition, "unknown status %q", to)
	}
	return m.mutate(ctx, "set status", id, func(ctx context.Context, tx SessionTx, s *model.Session) (change, error) {
		from := s.Status
		if from == to {
			return change{}, nil
		}
		if from.Terminal() && !override {
			return change{}, reject(KindInvalidTransition, "session is %s; changing it to %s requires an override", from, to)
		}
		if to.Blocking() && !from.Blocking() {
			conflict, err := NewAvailabilityIndex(tx).HasConflict(ctx, s.ReaderID, s.StartAt, s.EndAt, s.ID)
			if err != nil {
				return change{}, err
			}
			if conflict {
				return change{}, reject(KindSlotUnavailable, "the session's slot has been taken by another booking")
			}
		}
		s.Status = to
		c := change{dirty: true, events: []EventKind{EventStatusChanged}}
		if to == model.StatusConfirmed {
			c.events = append(c.events, EventPaymentConfirmed)
		}
		return c, nil
	})
}

// Reschedule moves a non-terminal session to [start, end).  The new
// window must pass the validator for the session's service type and must
// not collide with another blocking session; otherwise the stored record
// is left untouched.
func (m *Lifecycle) Reschedule(ctx context.Context, id string, start, end time.Time) (*model.Session, error) {
	start, end = normalize(start), normalize(end)
	return m.mutate(ctx, "reschedule", id, func(ctx context.Context, tx SessionTx, s *model.Session) (change, error) {
		if s.Status.Terminal() {
			return change{}, reject(KindInvalidTransition, "a %s session cannot be rescheduled", s.Status)
		}
		if err := m.validator.Validate(start, end, s.ServiceType); err != nil {
			return change{}, err
		}
		if s.StartAt.Equal(start) && s.EndAt.Equal(end) {
			return change{}, nil
		}
		conflict, err := NewAvailabilityIndex(tx).HasConflict(ctx, s.ReaderID, start, end, s.ID)
		if err != nil {
			return change{}, err
		}
		if conflict {
			return change{}, reject(KindSlotUnavailable, "the reader is already booked between %s and %s",
				start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		s.StartAt, s.EndAt = start, end
		return change{dirty: true, events: []EventKind{EventRescheduled}}, nil
	})
}

// AttachPayment records the external payment reference created when the
// client starts checkout.  Only pending_payment sessions accept one.
func (m *Lifecycle) AttachPayment(ctx context.Context, id, paymentRef string) (*model.Session, error) {
	return m.mutate(ctx, "attach payment", id, func(_ context.Context, _ SessionTx, s *model.Session) (change, error) {
		if s.Status != model.StatusPendingPayment {
			return change{}, reject(KindInvalidTransition, "a %s session does not accept a payment", s.Status)
		}
		if s.PaymentRef != nil && *s.PaymentRef == paymentRef {
			return change{}, nil
		}
		s.PaymentRef = &paymentRef
		return change{dirty: true}, nil
	})
}

// Delete removes a session permanently.  The slot is freed with the row.
func (m *Lifecycle) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, id); err != nil {
		err = storeFailure("delete session", err)
		if !errors.Is(err, ErrSessionNotFound) {
			m.log.Error("delete session failed", zap.String("session_id", id), zap.Error(err))
		}
		return err
	}
	m.log.Info("session deleted", zap.String("session_id", id))
	return nil
}

type mutation func(ctx context.Context, tx SessionTx, s *model.Session) (change, error)

// mutate loads the session to find its reader, takes the reader lock,
// reloads the row inside the lock and applies fn.  Events are emitted
// only after the write has committed.
func (m *Lifecycle) mutate(ctx context.Context, op, id string, fn mutation) (*model.Session, error) {
	sctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()

	current, err := m.store.GetByID(sctx, id)
	if err != nil {
		return nil, m.failure(op, id, err)
	}

	var (
		result *model.Session
		c      change
	)
	err = m.store.WithReaderLock(sctx, current.ReaderID, func(tx SessionTx) error {
		s, err := tx.GetForUpdate(sctx, id)
		if err != nil {
			return err
		}
		c, err = fn(sctx, tx, s)
		if err != nil {
			return err
		}
		if c.dirty {
			s.UpdatedAt = normalize(m.opts.Now())
			if err := tx.Update(sctx, s); err != nil {
				return err
			}
		}
		result = s
		return nil
	})
	if err != nil {
		return nil, m.failure(op, id, err)
	}

	if c.dirty {
		m.log.Info("session updated",
			zap.String("op", op),
			zap.String("session_id", result.ID),
			zap.String("status", string(result.Status)),
			zap.Time("start_at", result.StartAt),
			zap.Time("end_at", result.EndAt))
	}
	for _, kind := range c.events {
		emit(ctx, m.notifier, m.log, kind, *result)
	}
	return result, nil
}

func (m *Lifecycle) failure(op, id string, err error) error {
	if IsRejection(err) || errors.Is(err, ErrSessionNotFound) {
		return err
	}
	err = storeFailure(op, err)
	m.log.Error(op+" failed", zap.String("session_id", id), zap.Error(err))
	return err
}
