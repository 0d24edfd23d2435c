package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/weiihann/ddlbench/engine"
	"github.com/weiihann/ddlbench/workload"
)

// Engine is the database under test as the Runner sees it.
type Engine interface {
	Executor
	Statement(step workload.Step) (engine.Statement, error)
	// Connect prepares a session for the next phase.
	Connect(ctx context.Context) error
	// Reset returns the database to an empty state.
	Reset(ctx context.Context) error
}

// Recorder persists measurements. Record must not return before the row is
// durable, and must fail after Close.
type Recorder interface {
	Record(ctx context.Context, m Measurement) error
	Close() error
}

// RunConfig holds parameters for a single experiment run.
type RunConfig struct {
	RunID  string
	Phases []workload.Phase
}

// Runner drives one experiment against one engine.
type Runner struct {
	engine   Engine
	recorder Recorder
	timer    *Timer
	progress *Progress
	logger   *slog.Logger
}

// NewRunner creates a Runner. The progress line goes to progress (usually
// stderr); nil disables it. The runner owns rec and closes it at the end of
// Run.
func NewRunner(
	eng Engine,
	rec Recorder,
	progress io.Writer,
	logger *slog.Logger,
) *Runner {
	p := NewProgress(progress)

	return &Runner{
		engine:   eng,
		recorder: rec,
		timer:    NewTimer(p),
		progress: p,
		logger:   logger.With(slog.String("engine", string(eng.System()))),
	}
}

// Run executes the phases in order. Leftovers of an earlier run are cleared
// before the first phase. The first failing statement or record stops the
// run; the schema is then reset once on a best-effort basis. The recorder is
// closed on every path.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (Summary, error) {
	logger := r.logger.With(slog.String("run_id", cfg.RunID))
	summary := Summary{RunID: cfg.RunID, System: r.engine.System()}

	logger.InfoContext(ctx, "experiment started",
		slog.Int("phases", len(cfg.Phases)),
	)

	if len(cfg.Phases) > 0 {
		r.prepare(ctx, logger)
	}

	var runErr error

	for _, phase := range cfg.Phases {
		if err := r.runPhase(ctx, logger, cfg.RunID, phase, &summary); err != nil {
			runErr = err

			break
		}

		summary.Phases++
	}

	if runErr != nil {
		logger.ErrorContext(ctx, "experiment failed",
			slog.Int("phases_completed", summary.Phases),
			slog.Int("measurements", summary.Measurements),
			slog.String("error", runErr.Error()),
		)
		r.reset(ctx, logger)
	}

	if err := r.recorder.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("close recorder: %w", err))
	}

	if runErr != nil {
		return summary, runErr
	}

	logger.InfoContext(ctx, "experiment finished",
		slog.Int("phases_completed", summary.Phases),
		slog.Int("measurements", summary.Measurements),
		slog.Duration("engine_time", summary.EngineTime),
	)

	return summary, nil
}

func (r *Runner) runPhase(
	ctx context.Context,
	logger *slog.Logger,
	runID string,
	phase workload.Phase,
	summary *Summary,
) error {
	logger = logger.With(slog.Int("granularity", int(phase.Granularity)))
	if len(phase.Steps) > 0 {
		logger = logger.With(slog.String("object", string(phase.Steps[0].Object)))
	}

	logger.InfoContext(ctx, "phase", slog.String("status", "started"))

	err := r.execPhase(ctx, runID, phase, summary)
	r.progress.Done()

	if err != nil {
		logger.ErrorContext(ctx, "phase",
			slog.String("status", "failed"),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("granularity %d: %w", phase.Granularity, err)
	}

	logger.InfoContext(ctx, "phase", slog.String("status", "succeeded"))

	r.reset(ctx, logger)

	return nil
}

func (r *Runner) execPhase(
	ctx context.Context,
	runID string,
	phase workload.Phase,
	summary *Summary,
) error {
	if err := r.engine.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	for _, step := range phase.Steps {
		m, err := r.measure(ctx, runID, step)
		if err != nil {
			return err
		}

		summary.Measurements++
		summary.EngineTime += m.Elapsed
	}

	return nil
}

// measure times one step and persists it before returning.
func (r *Runner) measure(ctx context.Context, runID string, step workload.Step) (Measurement, error) {
	stmt, err := r.engine.Statement(step)
	if err != nil {
		return Measurement{}, err
	}

	timing, err := r.timer.Execute(ctx, r.engine, stmt)
	if err != nil {
		return Measurement{}, err
	}

	m := Measurement{
		RunID:       runID,
		System:      r.engine.System(),
		Operation:   step.Op,
		Statement:   stmt.Text(),
		Object:      step.Object,
		Granularity: step.Granularity,
		Repetition:  step.Repetition,
		ObjectIndex: step.Index,
		Elapsed:     timing.Elapsed,
		Start:       timing.Start,
		End:         timing.End,
	}

	if err := r.recorder.Record(ctx, m); err != nil {
		return Measurement{}, fmt.Errorf("record %s: %w", step.Op, err)
	}

	return m, nil
}

// prepare empties the schema before the first phase. Like reset it is
// best-effort: a connect failure here resurfaces in the first phase.
func (r *Runner) prepare(ctx context.Context, logger *slog.Logger) {
	if err := r.engine.Connect(ctx); err != nil {
		logger.WarnContext(ctx, "schema preparation skipped",
			slog.String("error", err.Error()),
		)

		return
	}

	r.reset(ctx, logger)
}

// reset is best-effort: failures are logged and never returned.
func (r *Runner) reset(ctx context.Context, logger *slog.Logger) {
	if err := r.engine.Reset(ctx); err != nil {
		logger.WarnContext(ctx, "schema reset failed",
			slog.String("error", err.Error()),
		)

		return
	}

	logger.InfoContext(ctx, "schema reset")
}
