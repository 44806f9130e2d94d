package booking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/celestia-booking/internal/catalog"
)

// BusinessHours describes when sessions may be scheduled.  Open and Close
// are offsets from local midnight in Location.
type BusinessHours struct {
	Location *time.Location
	Days     map[time.Weekday]bool
	Open     time.Duration
	Close    time.Duration
}

// DefaultBusinessHours is Monday to Friday, 10:00 to 18:00 UTC.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		Location: time.UTC,
		Days: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
		Open:  10 * time.Hour,
		Close: 18 * time.Hour,
	}
}

func (h BusinessHours) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

// ServiceLookup resolves a service type to its catalog entry.
type ServiceLookup interface {
	Lookup(key string) (catalog.Service, error)
}

// Validator checks a candidate window against the catalog and business
// hours.  It never touches storage and is safe for concurrent use.
type Validator struct {
	hours    BusinessHours
	services ServiceLookup
}

// NewValidator returns a Validator for the given hours and catalog.
func NewValidator(hours BusinessHours, services ServiceLookup) *Validator {
	return &Validator{hours: hours, services: services}
}

// Hours returns the business hours the validator enforces.
func (v *Validator) Hours() BusinessHours { return v.hours }

// Service resolves serviceType or returns an ErrUnknownService rejection.
func (v *Validator) Service(serviceType string) (catalog.Service, error) {
	svc, err := v.services.Lookup(serviceType)
	if err != nil {
		return catalog.Service{}, reject(KindUnknownService, "service type %q is not offered", serviceType)
	}
	return svc, nil
}

// Validate runs the rules in order and returns the first violation, or nil.
func (v *Validator) Validate(start, end time.Time, serviceType string) error {
	errs := v.check(start, end, serviceType, true)
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// ValidateAll runs every rule and returns all violations.  An unknown
// service stops evaluation because the duration rule cannot run.
func (v *Validator) ValidateAll(start, end time.Time, serviceType string) []error {
	return v.check(start, end, serviceType, false)
}

func (v *Validator) check(start, end time.Time, serviceType string, failFast bool) []error {
	svc, err := v.Service(serviceType)
	if err != nil {
		return []error{err}
	}
	var errs []error
	add := func(err error) bool {
		errs = append(errs, err)
		return failFast
	}

	if got := end.Sub(start); got != svc.Duration {
		if add(reject(KindDurationMismatch, "%s lasts %d minutes, requested window is %s",
			svc.Key, svc.Minutes(), got)) {
			return errs
		}
	}

	loc := v.hours.location()
	ls, le := start.In(loc), end.In(loc)

	if !v.hours.Days[ls.Weekday()] {
		if add(reject(KindOutsideBusinessDays, "sessions are only offered on %s", v.hours.dayList())) {
			return errs
		}
	}
	if timeOfDay(ls) < v.hours.Open {
		if add(reject(KindBeforeOpening, "sessions cannot start before %s", clock(v.hours.Open))) {
			return errs
		}
	}
	// Ending exactly at closing time is allowed.
	if endTOD, ok := endOfDay(ls, le); !ok || endTOD > v.hours.Close {
		add(reject(KindAfterClosing, "sessions must end by %s", clock(v.hours.Close)))
	}
	return errs
}

// timeOfDay is the wall-clock offset from local midnight, built from the
// clock fields so DST shifts do not skew it.
func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// endOfDay returns the time of day at which a window starting at ls ends,
// measured on the start date.  An end at exactly the following midnight
// is 24:00.  ok is false when the window runs into another date.
func endOfDay(ls, le time.Time) (time.Duration, bool) {
	if sameDate(ls, le) {
		return timeOfDay(le), true
	}
	if timeOfDay(le) == 0 && sameDate(ls.AddDate(0, 0, 1), le) {
		return 24 * time.Hour, true
	}
	return 0, false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

func (h BusinessHours) dayList() string {
	days := make([]time.Weekday, 0, len(h.Days))
	for d, ok := range h.Days {
		if ok {
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return mondayFirst(days[i]) < mondayFirst(days[j]) })
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, d.String())
	}
	return strings.Join(names, ", ")
}

func mondayFirst(d time.Weekday) int { return (int(d) + 6) % 7 }
