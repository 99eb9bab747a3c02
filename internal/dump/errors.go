package dump

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for recoverable conditions found while reading a dump.
var (
	ErrHeaderIncomplete = errors.New("file head not closed")
	ErrIncompleteFrame  = errors.New("data frame incomplete")
	ErrChannelParse     = errors.New("channel line not parseable")
	ErrFieldParse       = errors.New("field value not parseable")
)

// Diagnostic describes one recovered problem and where it was found.
type Diagnostic struct {
	Err     error
	Line    int
	Frame   int
	Missing []string
	Text    string
}

// Error implements error.
func (d Diagnostic) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "line %d: %v", d.Line, d.Err)
	if len(d.Missing) > 0 {
		fmt.Fprintf(&b, " (missing %s)", strings.Join(d.Missing, ", "))
	}
	if d.Text != "" {
		fmt.Fprintf(&b, ": %q", d.Text)
	}
	return b.String()
}

// Unwrap returns the sentinel error.
func (d Diagnostic) Unwrap() error {
	return d.Err
}
