// Package progress reports progress of long running computations on
// the terminal.
package progress

import (
	"io"

	"github.com/cheggaaa/pb/v3"
)

// Bar is a progress bar. A bar created with show=false counts but
// writes nothing.
type Bar struct {
	bar *pb.ProgressBar
}

// New creates and starts a progress bar for total steps.
func New(total int, show bool) *Bar {
	bar := pb.New(total)
	if !show {
		bar.SetWriter(io.Discard)
	}
	bar.Start()
	return &Bar{bar: bar}
}

// Increment advances the bar by one step.
func (b *Bar) Increment() {
	b.bar.Increment()
}

// Current returns the number of completed steps.
func (b *Bar) Current() int64 {
	return b.bar.Current()
}

// Finish stops the bar.
func (b *Bar) Finish() {
	b.bar.Finish()
}
