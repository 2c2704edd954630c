// Package browser walks a directory tree, turns file names into records and
// keeps the ones every configured filter accepts.
package browser

import (
	"context"
	"regexp"

	"github.com/XR-at-CISESS/lma-data/internal/util"
	"github.com/spf13/pflag"
)

// Args is the argument bag every filter sees during one find.
type Args struct {
	Dates   util.DateRange
	Values  map[string][]string // allow-lists keyed by option name
	NoCache bool
	OutDir  string

	ctx context.Context
}

// Allowed returns the allow-list registered under name.
func (a *Args) Allowed(name string) []string {
	if a == nil || a.Values == nil {
		return nil
	}
	return a.Values[name]
}

// SetAllowed stores an allow-list, flattening comma separated entries.
func (a *Args) SetAllowed(name string, values []string) {
	if a.Values == nil {
		a.Values = make(map[string][]string)
	}
	a.Values[name] = util.FlattenValues(values)
}

// Context is the context of the walk in progress.
func (a *Args) Context() context.Context {
	if a == nil || a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// Filter is a predicate over a discovered file and its parsed record.
type Filter[T any] interface {
	Name() string
	Test(path string, rec T, args *Args) bool
}

// FlagBinder is implemented by filters that contribute command line flags.
type FlagBinder interface {
	BindFlags(fs *pflag.FlagSet)
	ReadFlags(fs *pflag.FlagSet, args *Args) error
}

// All accepts a file only when every filter does. Evaluation stops at the
// first rejection.
type All[T any] []Filter[T]

func (All[T]) Name() string { return "all" }

func (f All[T]) Test(path string, rec T, args *Args) bool {
	for _, filter := range f {
		if !filter.Test(path, rec, args) {
			return false
		}
	}
	return true
}

// RegexFilter keeps files whose path matches a regular expression.
type RegexFilter[T any] struct {
	Pattern *regexp.Regexp
}

func NewRegexFilter[T any](expr string) (*RegexFilter[T], error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &RegexFilter[T]{Pattern: re}, nil
}

func (f *RegexFilter[T]) Name() string { return "regex" }

func (f *RegexFilter[T]) Test(path string, _ T, _ *Args) bool {
	return f.Pattern.MatchString(path)
}

// BindFilterFlags registers the flags of every filter that has any.
func BindFilterFlags[T any](fs *pflag.FlagSet, filters ...Filter[T]) {
	for _, f := range filters {
		if b, ok := f.(FlagBinder); ok {
			b.BindFlags(fs)
		}
	}
}

// ReadFilterFlags copies parsed flag values into args.
func ReadFilterFlags[T any](fs *pflag.FlagSet, args *Args, filters ...Filter[T]) error {
	for _, f := range filters {
		if b, ok := f.(FlagBinder); ok {
			if err := b.ReadFlags(fs, args); err != nil {
				return err
			}
		}
	}
	return nil
}
