package harness

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weiihann/ddlbench/engine"
)

// Executor runs one statement under its engine's discipline.
type Executor interface {
	System() engine.System
	Exec(ctx context.Context, stmt engine.Statement) error
}

// Timing is the interval spent inside one engine call, commit included.
type Timing struct {
	Start   time.Time
	End     time.Time
	Elapsed time.Duration
}

// Timer measures statement executions.
type Timer struct {
	progress *Progress
	now      func() time.Time
}

// NewTimer creates a Timer reporting the running statement to progress.
func NewTimer(progress *Progress) *Timer {
	return &Timer{progress: progress, now: time.Now}
}

// Execute runs stmt on ex and returns its timing. The progress line is
// written before the clock starts. On failure the partial interval is
// dropped and the executor's error is returned as is.
func (t *Timer) Execute(ctx context.Context, ex Executor, stmt engine.Statement) (Timing, error) {
	t.progress.Show(stmt.Text())

	start := t.now()

	if err := ex.Exec(ctx, stmt); err != nil {
		return Timing{}, err
	}

	end := t.now()

	return Timing{Start: start, End: end, Elapsed: end.Sub(start)}, nil
}

// Progress is the single overwritten "--running" line shown to operators.
type Progress struct {
	w    io.Writer
	last int // runes
}

// maxProgressWidth, in runes, keeps the line from wrapping on long rename
// statements.
const maxProgressWidth = 120

// NewProgress writes to w; a nil w disables output.
func NewProgress(w io.Writer) *Progress {
	if w == nil {
		w = io.Discard
	}

	return &Progress{w: w}
}

// Show replaces the current line with text.
func (p *Progress) Show(text string) {
	line := "--running: " + text

	width := utf8.RuneCountInString(line)
	if width > maxProgressWidth {
		line = string([]rune(line)[:maxProgressWidth-3]) + "..."
		width = maxProgressWidth
	}

	pad := ""
	if p.last > width {
		pad = strings.Repeat(" ", p.last-width)
	}

	p.last = width
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
}

// Done ends the current line so log output starts on a fresh one.
func (p *Progress) Done() {
	if p.last == 0 {
		return
	}

	p.last = 0
	fmt.Fprintln(p.w)
}
