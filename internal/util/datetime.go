package util

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateArgLayout is the format accepted for --start-date, --end-date and --date.
const DateArgLayout = "2006-01-02T15:04:05"

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrDateConflict = errors.New("an exact date cannot be combined with a start/end date")
)

// ParseDate parses a command line date (YYYY-MM-DDTHH:MM:SS, UTC).
// An empty string is "no date" and returns nil without error.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateArgLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w %q (want %s): %v", ErrInvalidDate, s, "YYYY-MM-DDTHH:MM:SS", err)
	}
	return &t, nil
}

// DateRange is an inclusive window; nil ends are open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether t lies within the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

func (r DateRange) String() string {
	format := func(t *time.Time) string {
		if t == nil {
			return "*"
		}
		return t.Format(DateArgLayout)
	}
	return format(r.Start) + " .. " + format(r.End)
}

// ResolveDateRange turns the three date flags into a range. An exact date
// pins both ends. In lenient mode an unparsable value is dropped (and
// reported through the returned warnings) instead of failing.
func ResolveDateRange(start, end, exact string, strict bool) (DateRange, []error, error) {
	var warnings []error
	parse := func(s string) (*time.Time, error) {
		t, err := ParseDate(s)
		if err != nil && !strict {
			warnings = append(warnings, err)
			return nil, nil
		}
		return t, err
	}

	s, err := parse(start)
	if err != nil {
		return DateRange{}, warnings, err
	}
	e, err := parse(end)
	if err != nil {
		return DateRange{}, warnings, err
	}
	d, err := parse(exact)
	if err != nil {
		return DateRange{}, warnings, err
	}

	if d != nil {
		if s != nil || e != nil {
			return DateRange{}, warnings, ErrDateConflict
		}
		return DateRange{Start: d, End: d}, warnings, nil
	}
	return DateRange{Start: s, End: e}, warnings, nil
}
