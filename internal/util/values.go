package util

import "strings"

// FlattenValues expands repeated, comma separated flag values into a single
// list. Blank entries are dropped; nil means "no restriction".
func FlattenValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Tail keeps the last n lines written to it.
type Tail struct {
	n     int
	lines []string
}

func NewTail(n int) *Tail {
	return &Tail{n: n}
}

func (t *Tail) Add(line string) {
	if t.n <= 0 {
		return
	}
	if len(t.lines) == t.n {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.n-1]
	}
	t.lines = append(t.lines, line)
}

func (t *Tail) String() string {
	return strings.Join(t.lines, "\n")
}
