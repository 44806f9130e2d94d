package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/celestia-booking/internal/booking"
)

// ScheduleConfig holds the scheduling rules and store limits.
type ScheduleConfig struct {
	Location       *time.Location
	Days           map[time.Weekday]bool
	Open           time.Duration
	Close          time.Duration
	SlotStep       time.Duration
	StoreTimeout   time.Duration
	ActiveReaderID uint64 // 0: resolve from the active_reader table
	CatalogFile    string // empty: built-in catalog
}

// LoadSchedule reads SCHEDULE_TZ, BUSINESS_DAYS, BUSINESS_OPEN,
// BUSINESS_CLOSE, SLOT_STEP, STORE_TIMEOUT, ACTIVE_READER_ID and
// CATALOG_FILE.  Unset variables keep the defaults: Mon-Fri, 10:00 to
// 18:00 UTC, 15 minute slots and a 5 second store timeout.
func LoadSchedule() (ScheduleConfig, error) {
	loc, err := time.LoadLocation(envStr("SCHEDULE_TZ", "UTC"))
	if err != nil {
		return ScheduleConfig{}, fmt.Errorf("SCHEDULE_TZ: %w", err)
	}
	days, err := ParseDays(envStr("BUSINESS_DAYS", "Mon-Fri"))
	if err != nil {
		return ScheduleConfig{}, fmt.Errorf("BUSINESS_DAYS: %w", err)
	}
	open, err := ParseClock(envStr("BUSINESS_OPEN", "10:00"))
	if err != nil {
		return ScheduleConfig{}, fmt.Errorf("BUSINESS_OPEN: %w", err)
	}
	closing, err := ParseClock(envStr("BUSINESS_CLOSE", "18:00"))
	if err != nil {
		return ScheduleConfig{}, fmt.Errorf("BUSINESS_CLOSE: %w", err)
	}
	if closing <= open {
		return ScheduleConfig{}, fmt.Errorf("BUSINESS_CLOSE must be after BUSINESS_OPEN")
	}
	var reader uint64
	if v := os.Getenv("ACTIVE_READER_ID"); v != "" {
		if reader, err = strconv.ParseUint(v, 10, 64); err != nil {
			return ScheduleConfig{}, fmt.Errorf("ACTIVE_READER_ID: invalid id %q", v)
		}
	}
	return ScheduleConfig{
		Location:       loc,
		Days:           days,
		Open:           open,
		Close:          closing,
		SlotStep:       envDur("SLOT_STEP", 15*time.Minute),
		StoreTimeout:   envDur("STORE_TIMEOUT", 5*time.Second),
		ActiveReaderID: reader,
		CatalogFile:    os.Getenv("CATALOG_FILE"),
	}, nil
}

// BusinessHours converts the schedule into the validator's rules.
func (s ScheduleConfig) BusinessHours() booking.BusinessHours {
	return booking.BusinessHours{
		Location: s.Location,
		Days:     s.Days,
		Open:     s.Open,
		Close:    s.Close,
	}
}

// Options returns the tuning knobs for the booking services.
func (s ScheduleConfig) Options() booking.Options {
	return booking.Options{StoreTimeout: s.StoreTimeout, SlotStep: s.SlotStep}
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseDays accepts comma separated day names or ranges, e.g.
// "Mon-Fri", "mon,wed,fri" or "Tue-Thu,Sat".  Ranges wrap past Sunday.
func ParseDays(s string) (map[time.Weekday]bool, error) {
	out := map[time.Weekday]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		first, err := weekday(from)
		if err != nil {
			return nil, err
		}
		if !isRange {
			out[first] = true
			continue
		}
		last, err := weekday(to)
		if err != nil {
			return nil, err
		}
		for d := first; ; d = (d + 1) % 7 {
			out[d] = true
			if d == last {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no business days in %q", s)
	}
	return out, nil
}

func weekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if len(key) >= 3 {
		key = key[:3]
	}
	d, ok := weekdays[key]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

// ParseClock parses "HH:MM" into an offset from midnight.  "24:00" is
// accepted as the end of the day.
func ParseClock(s string) (time.Duration, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
