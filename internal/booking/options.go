package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/model"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultSlotStep     = 15 * time.Minute
	notifyTimeout       = 5 * time.Second
)

// Options tunes the reservation service and the lifecycle manager.  Zero
// fields fall back to defaults.
type Options struct {
	// StoreTimeout bounds every call into the session store.
	StoreTimeout time.Duration
	// SlotStep is the spacing of candidate start times in Availability.
	SlotStep time.Duration
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = defaultStoreTimeout
	}
	if o.SlotStep <= 0 {
		o.SlotStep = defaultSlotStep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.NewString() }
	}
	return o
}

// normalize drops sub-second precision, which the store does not keep,
// and moves the instant to UTC.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// emit hands an event to the notifier without letting the request's
// cancellation or a delivery failure affect the caller.
func emit(ctx context.Context, n Notifier, log *zap.Logger, kind EventKind, s model.Session) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := n.Notify(ctx, kind, s); err != nil {
		log.Warn("session notification failed",
			zap.String("event", string(kind)),
			zap.String("session_id", s.ID),
			zap.Error(err))
	}
}

func windowFields(readerID uint64, start, end time.Time) []zap.Field {
	return []zap.Field{
		zap.Uint64("reader_id", readerID),
		zap.Time("start_at", start),
		zap.Time("end_at", end),
	}
}
