package booking

import (
	"context"
	"time"

	"github.com/iliyamo/celestia-booking/internal/model"
)

// Overlaps reports whether [s1, e1) and [s2, e2) intersect.  Intervals
// that only touch at an endpoint do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// AvailabilityIndex answers conflict questions for a reader's calendar.
// It is read-only.
type AvailabilityIndex struct {
	q SessionQuerier
}

// NewAvailabilityIndex returns an index reading from q.  Pass a SessionTx
// to check conflicts inside a reader lock.
func NewAvailabilityIndex(q SessionQuerier) *AvailabilityIndex {
	return &AvailabilityIndex{q: q}
}

// Conflicts returns the blocking sessions of readerID that overlap
// [start, end), skipping excludingID when it is non-empty.
func (a *AvailabilityIndex) Conflicts(ctx context.Context, readerID uint64, start, end time.Time, excludingID string) ([]model.Session, error) {
	candidates, err := a.q.ListBlocking(ctx, readerID, start, end)
	if err != nil {
		return nil, storeFailure("list blocking sessions", err)
	}
	var out []model.Session
	for _, s := range candidates {
		if s.ReaderID != readerID || !s.Status.Blocking() {
			continue
		}
		if excludingID != "" && s.ID == excludingID {
			continue
		}
		if Overlaps(start, end, s.StartAt, s.EndAt) {
			out = append(out, s)
		}
	}
	return out, nil
}

// HasConflict reports whether [start, end) collides with any blocking
// session of readerID other than excludingID.  A store failure is
// returned as an error and never reported as "no conflict".
func (a *AvailabilityIndex) HasConflict(ctx context.Context, readerID uint64, start, end time.Time, excludingID string) (bool, error) {
	conflicts, err := a.Conflicts(ctx, readerID, start, end, excludingID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}
