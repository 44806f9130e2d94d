package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/model"
)

// ReserveRequest is a client's request for a new session.
type ReserveRequest struct {
	ClientID      uint64
	ServiceType   string
	StartAt       time.Time
	EndAt         time.Time
	ClientMessage string
}

// Slot is a bookable interval returned by Availability.
type Slot struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// Service turns booking requests into durable sessions.  The validator
// runs first without touching the store; the conflict check and the
// insert then run together under the reader's lock.
type Service struct {
	validator *Validator
	store     SessionStore
	readers   ReaderResolver
	notifier  Notifier
	log       *zap.Logger
	opts      Options
}

// NewService wires a reservation service.  notifier may be nil.
func NewService(store SessionStore, validator *Validator, readers ReaderResolver, notifier Notifier, log *zap.Logger, opts Options) *Service {
	if store == nil || validator == nil || readers == nil {
		panic("nil dependency passed to booking.NewService")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		validator: validator,
		store:     store,
		readers:   readers,
		notifier:  notifier,
		log:       log,
		opts:      opts.withDefaults(),
	}
}

// StoreTimeout is the bound applied to each store call.
func (s *Service) StoreTimeout() time.Duration { return s.opts.StoreTimeout }

// Validator exposes the time-window rules the service enforces.
func (s *Service) Validator() *Validator { return s.validator }

// Reserve validates the requested window and, if the reader is free,
// stores a new pending_payment session with the price frozen from the
// catalog.  Two overlapping Reserve calls for the same reader never both
// succeed; the loser gets ErrSlotUnavailable.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*model.Session, error) {
	readerID, err := s.activeReader(ctx)
	if err != nil {
		return nil, err
	}

	start, end := normalize(req.StartAt), normalize(req.EndAt)
	if err := s.validator.Validate(start, end, req.ServiceType); err != nil {
		return nil, err
	}
	svc, err := s.validator.Service(req.ServiceType)
	if err != nil {
		return nil, err
	}

	now := normalize(s.opts.Now())
	sess := &model.Session{
		ID:          s.opts.NewID(),
		ClientID:    req.ClientID,
		ReaderID:    readerID,
		ServiceType: svc.Key,
		StartAt:     start,
		EndAt:       end,
		Status:      model.StatusPendingPayment,
		AmountCents: svc.PriceCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if msg := strings.TrimSpace(req.ClientMessage); msg != "" {
		sess.ClientMessage = &msg
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	err = s.store.WithReaderLock(sctx, readerID, func(tx SessionTx) error {
		conflict, err := NewAvailabilityIndex(tx).HasConflict(sctx, readerID, start, end, "")
		if err != nil {
			return err
		}
		if conflict {
			return reject(KindSlotUnavailable, "the reader is already booked between %s and %s",
				start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		return tx.Insert(sctx, sess)
	})
	if err != nil {
		return nil, s.failure("reserve", err, windowFields(readerID, start, end)...)
	}

	s.log.Info("session reserved",
		append(windowFields(readerID, start, end),
			zap.String("session_id", sess.ID),
			zap.Uint64("client_id", sess.ClientID),
			zap.String("service_type", sess.ServiceType))...)
	emit(ctx, s.notifier, s.log, EventBookingCreated, *sess)
	return sess, nil
}

// Availability lists the start times on the local date of day at which
// serviceType could be booked right now.  Slots are spaced by
// Options.SlotStep from opening time and returned in UTC.
func (s *Service) Availability(ctx context.Context, day time.Time, serviceType string) ([]Slot, error) {
	svc, err := s.validator.Service(serviceType)
	if err != nil {
		return nil, err
	}
	readerID, err := s.activeReader(ctx)
	if err != nil {
		return nil, err
	}

	hours := s.validator.Hours()
	loc := hours.location()
	y, m, d := day.In(loc).Date()
	open := atOffset(y, m, d, hours.Open, loc)
	closing := atOffset(y, m, d, hours.Close, loc)
	slots := []Slot{}
	if !hours.Days[open.Weekday()] || !open.Before(closing) {
		return slots, nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	taken, err := NewAvailabilityIndex(s.store).Conflicts(sctx, readerID, open.UTC(), closing.UTC(), "")
	if err != nil {
		return nil, s.failure("availability", err, windowFields(readerID, open, closing)...)
	}

	for start := open; !start.Add(svc.Duration).After(closing); start = start.Add(s.opts.SlotStep) {
		end := start.Add(svc.Duration)
		if s.validator.Validate(start, end, svc.Key) != nil {
			continue
		}
		free := true
		for _, t := range taken {
			if Overlaps(start, end, t.StartAt, t.EndAt) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, Slot{StartAt: start.UTC(), EndAt: end.UTC()})
		}
	}
	return slots, nil
}

// Get loads a single session.
func (s *Service) Get(ctx context.Context, id string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	sess, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, storeFailure("get session", err)
	}
	return sess, nil
}

// List returns the sessions matching f.
func (s *Service) List(ctx context.Context, f SessionFilter) ([]model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, storeFailure("list sessions", err)
	}
	return out, nil
}

func (s *Service) activeReader(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	id, err := s.readers.ActiveReader(ctx)
	switch {
	case err == nil && id != 0:
		return id, nil
	case err == nil, errors.Is(err, ErrNoReaderAvailable):
		s.log.Error("configuration error: no active reader", zap.Error(err))
		return 0, ErrNoReaderAvailable
	default:
		err = storeFailure("resolve active reader", err)
		s.log.Error("resolve active reader failed", zap.Error(err))
		return 0, err
	}
}

// failure classifies an error from the locked section.  Rejections pass
// through; a missing reader row is a configuration defect; anything else
// is logged with the requested window and reported as transient.
func (s *Service) failure(op string, err error, fields ...zap.Field) error {
	switch {
	case IsRejection(err):
		return err
	case errors.Is(err, ErrReaderNotFound):
		s.log.Error("configuration error: active reader does not exist", fields...)
		return ErrNoReaderAvailable
	}
	err = storeFailure(op, err)
	s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	return err
}

func atOffset(y int, m time.Month, d int, off time.Duration, loc *time.Location) time.Time {
	h := int(off / time.Hour)
	mins := int(off % time.Hour / time.Minute)
	return time.Date(y, m, d, h, mins, 0, 0, loc)
}
