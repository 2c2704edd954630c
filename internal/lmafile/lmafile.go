// Package lmafile recognises Lightning Mapping Array data files by name and
// extracts the metadata encoded in them. Nothing here opens a file.
package lmafile

import (
	"cmp"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Record is anything the browser can discover: a file on disk whose name
// carries a network and an acquisition instant.
type Record interface {
	Path() string
	Network() string
	Timestamp() time.Time
}

// stationer is implemented by records that belong to a single station.
type stationer interface {
	StationID() string
}

// Layouts shared by the file name formats and the worker command line.
const (
	StampLayout = "060102_150405"
	DateLayout  = "20060102"
	TimeLayout  = "150405"
)

// Compare orders records by timestamp, then network, then station id, then path.
func Compare(a, b Record) int {
	if c := a.Timestamp().Compare(b.Timestamp()); c != 0 {
		return c
	}
	if c := strings.Compare(a.Network(), b.Network()); c != 0 {
		return c
	}
	if c := strings.Compare(stationOf(a), stationOf(b)); c != 0 {
		return c
	}
	return cmp.Compare(a.Path(), b.Path())
}

// Sort orders records in place using Compare.
func Sort[T Record](records []T) {
	slices.SortStableFunc(records, func(a, b T) int { return Compare(a, b) })
}

// FormatStamp renders t the way station file names encode it (YYMMDD_HHMMSS).
func FormatStamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}

func stationOf(r Record) string {
	if s, ok := r.(stationer); ok {
		return s.StationID()
	}
	return ""
}

// parseStamp turns the digit groups of a file name into a UTC instant.
// Six digit dates are two-digit years in the 2000s.
func parseStamp(date, clock string) (time.Time, bool) {
	switch len(date) {
	case 6:
		date = "20" + date
	case 8:
	default:
		return time.Time{}, false
	}
	if len(clock) != 6 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout+TimeLayout, date+clock, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func baseName(path string) string {
	return filepath.Base(filepath.ToSlash(path))
}
