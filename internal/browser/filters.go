package browser

import (
	"fmt"
	"os"
	"strings"

	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
	"github.com/spf13/pflag"
)

// DateFilter keeps records whose timestamp lies in args.Dates (inclusive).
// Records without a timestamp are rejected unless AcceptMissing is set.
type DateFilter[T lmafile.Record] struct {
	AcceptMissing bool
}

func (f DateFilter[T]) Name() string { return "date" }

func (f DateFilter[T]) Test(_ string, rec T, args *Args) bool {
	ts := rec.Timestamp()
	if ts.IsZero() {
		return f.AcceptMissing
	}
	return args.Dates.Contains(ts)
}

// OptionsFilter keeps records whose property is in the allow-list stored
// under its name. An empty list allows everything. Matching ignores case.
type OptionsFilter[T any] struct {
	option    string
	shorthand string
	usage     string
	property  func(T) []string
}

// NewOptionsFilter builds an allow-list filter. property may return several
// candidate values; the record passes if any of them is allowed.
func NewOptionsFilter[T any](option, shorthand, usage string, property func(T) []string) *OptionsFilter[T] {
	return &OptionsFilter[T]{option: option, shorthand: shorthand, usage: usage, property: property}
}

// NetworkFilter filters on the record's network under --networks.
func NetworkFilter[T lmafile.Record](shorthand string) *OptionsFilter[T] {
	return NewOptionsFilter(OptionNetworks, shorthand, "Only include these networks (repeatable, comma separated)",
		func(r T) []string { return []string{r.Network()} })
}

// StationFilter filters station files by identifier or name under --stations.
func StationFilter(shorthand string) *OptionsFilter[lmafile.StationFile] {
	return NewOptionsFilter(OptionStations, shorthand, "Only include these stations, by identifier or name (repeatable, comma separated)",
		func(r lmafile.StationFile) []string { return []string{r.ID, r.StationName} })
}

const (
	OptionNetworks = "networks"
	OptionStations = "stations"
)

func (f *OptionsFilter[T]) Name() string { return f.option }

func (f *OptionsFilter[T]) Test(_ string, rec T, args *Args) bool {
	allowed := args.Allowed(f.option)
	if len(allowed) == 0 {
		return true
	}
	for _, v := range f.property(rec) {
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				return true
			}
		}
	}
	return false
}

func (f *OptionsFilter[T]) BindFlags(fs *pflag.FlagSet) {
	fs.StringArrayP(f.option, f.shorthand, nil, f.usage)
}

func (f *OptionsFilter[T]) ReadFlags(fs *pflag.FlagSet, args *Args) error {
	values, err := fs.GetStringArray(f.option)
	if err != nil {
		return fmt.Errorf("read --%s: %w", f.option, err)
	}
	args.SetAllowed(f.option, values)
	return nil
}

// NonEmptyFilter drops files smaller than MinSize bytes. Files that cannot
// be stat'ed are dropped too.
type NonEmptyFilter[T any] struct {
	MinSize int64
}

// NewNonEmptyFilter keeps files of at least minSize bytes.
func NewNonEmptyFilter[T any](minSize int64) *NonEmptyFilter[T] {
	return &NonEmptyFilter[T]{MinSize: minSize}
}

func (f *NonEmptyFilter[T]) Name() string { return "non-empty" }

func (f *NonEmptyFilter[T]) Test(path string, _ T, _ *Args) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() >= f.MinSize
}

func (f *NonEmptyFilter[T]) BindFlags(fs *pflag.FlagSet) {
	fs.Int64("min-size", f.MinSize, "Skip input files smaller than this many bytes")
}

// ReadFlags overrides MinSize only when --min-size was given.
func (f *NonEmptyFilter[T]) ReadFlags(fs *pflag.FlagSet, _ *Args) error {
	if fs.Changed("min-size") {
		v, err := fs.GetInt64("min-size")
		if err != nil {
			return fmt.Errorf("read --min-size: %w", err)
		}
		f.MinSize = v
	}
	if f.MinSize < 0 {
		return fmt.Errorf("--min-size must not be negative, got %d", f.MinSize)
	}
	return nil
}
