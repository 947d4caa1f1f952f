// Package progress renders terminal progress bars for the download and
// processing phases.
package progress

import (
	"io"

	pb "github.com/cheggaaa/pb/v3"
)

const barTemplate pb.ProgressBarTemplate = `{{string . "label"}}: {{percent . }} {{bar . "|" "█" "█" " " "|"}} {{counters . }} [{{etime . }}<{{rtime . }}, {{speed . "%s it/s" "? it/s"}}]`

// Bar is a counter-style progress bar. A nil *Bar is valid and does nothing,
// so callers never need to check whether progress output is enabled.
type Bar struct {
	bar *pb.ProgressBar
}

// Start creates and starts a bar of total steps writing to w. It returns nil
// when w is nil.
func Start(w io.Writer, total int, label string) *Bar {
	if w == nil {
		return nil
	}
	bar := barTemplate.New(total)
	bar.SetWriter(w)
	bar.Set("label", label)
	bar.Start()
	return &Bar{bar: bar}
}

// Increment advances the bar by one step.
func (b *Bar) Increment() {
	if b == nil {
		return
	}
	b.bar.Increment()
}

// Current returns the number of completed steps.
func (b *Bar) Current() int64 {
	if b == nil {
		return 0
	}
	return b.bar.Current()
}

// Finish renders the final state and stops refreshing.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	b.bar.Finish()
}
