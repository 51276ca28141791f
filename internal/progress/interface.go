// Package progress renders transfer progress in the terminal: mpb bars for
// chunked uploads and a progressbar spinner for the download phases. Both
// UIs implement transfer.Reporter and fall back to one line per event when
// stderr is not a terminal.
package progress

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/viforest/viforest/internal/transfer"
)

// UI is a transfer.Reporter that owns a region of the terminal.
type UI interface {
	transfer.Reporter

	// Wait blocks until every bar has finished rendering.
	Wait()

	// Writer returns an io.Writer that prints above the bars when they are
	// active, otherwise the plain output.
	Writer() io.Writer

	// IsTerminal reports whether bars are drawn.
	IsTerminal() bool
}

type options struct {
	out        io.Writer
	isTerminal bool
}

// Option configures an upload or download UI.
type Option func(*options)

// WithOutput sends all rendering to w instead of stderr. Output to anything
// other than a terminal file uses the line mode unless WithTerminal(true)
// is also given.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
		o.isTerminal = false
	}
}

// WithTerminal forces bar rendering on or off.
func WithTerminal(on bool) Option {
	return func(o *options) {
		o.isTerminal = on
	}
}

func newOptions(opts []Option) options {
	o := options{out: os.Stderr, isTerminal: IsTerminal(os.Stderr)}
	for _, opt := range opts {
		opt(&o)
	}
	if f, ok := o.out.(*os.File); ok && o.isTerminal {
		enableANSI(f)
	}
	return o
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
