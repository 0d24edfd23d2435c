package harness

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/weiihann/ddlbench/engine"
	"github.com/weiihann/ddlbench/workload"
)

type stubExecutor struct {
	err   error
	calls int
}

func (s *stubExecutor) System() engine.System { return engine.DuckDB }

func (s *stubExecutor) Exec(context.Context, engine.Statement) error {
	s.calls++

	return s.err
}

// steppingClock returns start on the first call and start+delta after.
func steppingClock(start time.Time, delta time.Duration) func() time.Time {
	calls := 0

	return func() time.Time {
		calls++
		if calls == 1 {
			return start
		}

		return start.Add(delta)
	}
}

func TestProperty_TimingInterval(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	stmt := engine.Statement{Op: workload.OpShow, SQL: []string{"SHOW TABLES"}, Rows: true}

	properties.Property("elapsed equals end minus start", prop.ForAll(
		func(startNs int64, deltaNs int64) bool {
			start := time.Unix(0, startNs)
			timer := &Timer{
				progress: NewProgress(nil),
				now:      steppingClock(start, time.Duration(deltaNs)),
			}

			timing, err := timer.Execute(context.Background(), &stubExecutor{}, stmt)
			if err != nil {
				return false
			}

			return timing.Elapsed == timing.End.Sub(timing.Start) &&
				!timing.End.Before(timing.Start) &&
				timing.Start.Equal(start)
		},
		gen.Int64Range(0, 1<<50),
		gen.Int64Range(0, int64(time.Hour)),
	))

	properties.TestingRun(t)
}

func TestTimerPassesErrorThrough(t *testing.T) {
	want := errors.New("relation already exists")
	ex := &stubExecutor{err: want}

	timing, err := NewTimer(NewProgress(nil)).Execute(
		context.Background(), ex, engine.Statement{SQL: []string{"CREATE TABLE t_0 (id INTEGER)"}},
	)
	if err != want {
		t.Fatalf("err = %v, want %v unchanged", err, want)
	}
	if timing != (Timing{}) {
		t.Errorf("timing = %+v, want zero on failure", timing)
	}
	if ex.calls != 1 {
		t.Errorf("calls = %d, want 1", ex.calls)
	}
}

func TestTimerMeasuresRealClock(t *testing.T) {
	timing, err := NewTimer(NewProgress(nil)).Execute(
		context.Background(), &stubExecutor{}, engine.Statement{SQL: []string{"SELECT 1"}},
	)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if timing.Elapsed < 0 {
		t.Errorf("elapsed = %v, want >= 0", timing.Elapsed)
	}
	if timing.Start.IsZero() || timing.End.IsZero() {
		t.Error("expected wall clock timestamps")
	}
}

func TestProgressOverwritesLine(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	p.Show("CREATE TABLE t_100 (id INTEGER PRIMARY KEY, value TEXT)")
	p.Show("SHOW")
	p.Done()

	output := buf.String()

	lines := strings.Split(output, "\r")
	if len(lines) != 3 {
		t.Fatalf("expected two carriage-return updates, got %q", output)
	}

	long := "--running: CREATE TABLE t_100 (id INTEGER PRIMARY KEY, value TEXT)"
	second := lines[2]
	if len(strings.TrimSuffix(second, "\n")) != len(long) {
		t.Errorf("second line not padded over the first: %q", second)
	}
	if !strings.HasPrefix(second, "--running: SHOW ") {
		t.Errorf("second line = %q", second)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Done should end the line")
	}
}

func TestProgressTruncatesLongText(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	p.Show(strings.Repeat("x", 500))

	line := strings.TrimPrefix(buf.String(), "\r")
	if len(line) != maxProgressWidth {
		t.Errorf("line length = %d, want %d", len(line), maxProgressWidth)
	}
	if !strings.HasSuffix(line, "...") {
		t.Errorf("truncated line should end with an ellipsis: %q", line)
	}
}

func TestProgressTruncatesOnRuneBoundary(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	p.Show("COMMENT ON TABLE t_0 IS '" + strings.Repeat("é", 500) + "'")

	line := strings.TrimPrefix(buf.String(), "\r")
	if !utf8.ValidString(line) {
		t.Fatalf("truncated line is not valid UTF-8: %q", line)
	}
	if n := utf8.RuneCountInString(line); n != maxProgressWidth {
		t.Errorf("line width = %d runes, want %d", n, maxProgressWidth)
	}
	if !strings.HasSuffix(line, "...") {
		t.Errorf("truncated line should end with an ellipsis: %q", line)
	}

	// The next line is padded over the previous one by rune count.
	buf.Reset()
	p.Show("SHOW TABLES")

	next := strings.TrimPrefix(buf.String(), "\r")
	if n := utf8.RuneCountInString(next); n != maxProgressWidth {
		t.Errorf("padded line width = %d runes, want %d", n, maxProgressWidth)
	}
}

func TestProgressDoneWithoutShow(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	p.Done()

	if buf.Len() != 0 {
		t.Errorf("Done without Show wrote %q", buf.String())
	}
}
