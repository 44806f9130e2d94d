// Package booking implements Celestia's scheduling core: the time-window
// validator, the availability index, the reservation service and the
// session lifecycle manager.  Storage, notification and reader lookup
// are consumed through the small interfaces declared in store.go.
package booking

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule rejection.  Kinds are stable strings
// and are safe to return to API clients.
type Kind string

const (
	KindUnknownService      Kind = "unknown_service"
	KindDurationMismatch    Kind = "duration_mismatch"
	KindOutsideBusinessDays Kind = "outside_business_days"
	KindBeforeOpening       Kind = "before_opening"
	KindAfterClosing        Kind = "after_closing"
	KindSlotUnavailable     Kind = "slot_unavailable"
	KindInvalidTransition   Kind = "invalid_transition"
)

// RejectionError is a recoverable business-rule rejection.  Callers match
// it with errors.Is against the exported sentinels; the comparison looks
// at Kind only, so a rejection carrying a detailed message still matches.
type RejectionError struct {
	Kind    Kind
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any RejectionError of the same kind.
func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnknownService      = &RejectionError{Kind: KindUnknownService}
	ErrDurationMismatch    = &RejectionError{Kind: KindDurationMismatch}
	ErrOutsideBusinessDays = &RejectionError{Kind: KindOutsideBusinessDays}
	ErrBeforeOpening       = &RejectionError{Kind: KindBeforeOpening}
	ErrAfterClosing        = &RejectionError{Kind: KindAfterClosing}
	ErrSlotUnavailable     = &RejectionError{Kind: KindSlotUnavailable}
	ErrInvalidTransition   = &RejectionError{Kind: KindInvalidTransition}
)

// ErrNoReaderAvailable means the deployment has no active reader
// configured.  It is a configuration defect, not a client error.
var ErrNoReaderAvailable = errors.New("no active reader configured")

// ErrSessionNotFound is returned by stores and by the lifecycle manager
// when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrReaderNotFound is returned by stores when the reader row to lock
// does not exist.
var ErrReaderNotFound = errors.New("reader not found")

// ErrStoreUnavailable marks transient infrastructure failures: timeouts,
// lost connections, lock waits.  The whole call may be retried.
var ErrStoreUnavailable = errors.New("session store unavailable")

func reject(kind Kind, format string, args ...any) error {
	return &RejectionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the rejection kind from err, if it is a rejection.
func KindOf(err error) (Kind, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

// IsRejection reports whether err is a business-rule rejection as
// opposed to an infrastructure failure.
func IsRejection(err error) bool {
	_, ok := KindOf(err)
	return ok
}

// storeFailure wraps an infrastructure error so that it matches
// ErrStoreUnavailable while keeping the cause.  Errors that already carry
// a domain meaning pass through untouched.
func storeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsRejection(err),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrReaderNotFound),
		errors.Is(err, ErrStoreUnavailable):
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
