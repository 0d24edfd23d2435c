package harness_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/weiihann/ddlbench/engine"
	"github.com/weiihann/ddlbench/harness"
	"github.com/weiihann/ddlbench/recorder"
	"github.com/weiihann/ddlbench/workload"
)

func TestSQLiteRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	dbPath := filepath.Join(dir, "bench.db")
	logPath := filepath.Join(dir, "experiment_logs.db")

	eng, err := engine.New(engine.SQLite, engine.Options{Path: dbPath})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	defer eng.Close()

	rec, err := recorder.Open(ctx, logPath)
	if err != nil {
		t.Fatalf("recorder.Open failed: %v", err)
	}

	plan := workload.NewGenerator(workload.Config{
		Granularities: []workload.Granularity{workload.G10},
		Seed:          7,
	}).Phases()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	summary, err := harness.NewRunner(eng, rec, nil, logger).Run(ctx, harness.RunConfig{
		RunID:  "run-e2e",
		Phases: plan,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := 10 + 4*workload.Repetitions
	if summary.Measurements != want {
		t.Errorf("measurements = %d, want %d", summary.Measurements, want)
	}

	// The schema is reset after the phase.
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("database file still present after reset: %v", err)
	}

	check, err := recorder.Open(ctx, logPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer check.Close()

	rows, err := check.Rows(ctx, engine.SQLite, "run-e2e")
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != want {
		t.Fatalf("rows = %d, want %d", len(rows), want)
	}

	creates := 0

	for _, row := range rows {
		if row.Elapsed <= 0 {
			t.Errorf("%s elapsed = %v, want > 0", row.Operation, row.Elapsed)
		}
		if row.End.Before(row.Start) {
			t.Errorf("%s ends before it starts", row.Operation)
		}

		if row.Operation != workload.OpCreate {
			continue
		}

		if row.ObjectIndex != creates {
			t.Errorf("create index = %d, want %d", row.ObjectIndex, creates)
		}
		wantSQL := fmt.Sprintf("CREATE TABLE t_%d (id INTEGER PRIMARY KEY, value TEXT)", creates)
		if row.Statement != wantSQL {
			t.Errorf("create statement = %q, want %q", row.Statement, wantSQL)
		}

		creates++
	}

	if creates != 10 {
		t.Errorf("creates = %d, want 10", creates)
	}

	for _, other := range []engine.System{engine.Postgres, engine.DuckDB, engine.Snowflake} {
		rows, err := check.Rows(ctx, other, "")
		if err != nil {
			t.Fatalf("Rows(%s) failed: %v", other, err)
		}
		if len(rows) != 0 {
			t.Errorf("%s rows = %d, want 0", other, len(rows))
		}
	}
}

func TestSQLiteRunClearsLeftovers(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	dbPath := filepath.Join(dir, "bench.db")

	eng, err := engine.New(engine.SQLite, engine.Options{Path: dbPath})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	defer eng.Close()

	// A crashed run left t_0 behind.
	if err := eng.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	leftover, err := eng.Statement(workload.Step{Op: workload.OpCreate, Object: workload.ObjectTable})
	if err != nil {
		t.Fatalf("Statement failed: %v", err)
	}
	if err := eng.Exec(ctx, leftover); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	rec, err := recorder.Open(ctx, filepath.Join(dir, "experiment_logs.db"))
	if err != nil {
		t.Fatalf("recorder.Open failed: %v", err)
	}

	plan := workload.NewGenerator(workload.Config{
		Granularities: []workload.Granularity{workload.G1},
		Seed:          7,
	}).Phases()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	summary, err := harness.NewRunner(eng, rec, nil, logger).Run(ctx, harness.RunConfig{
		RunID:  "run-after-crash",
		Phases: plan,
	})
	if err != nil {
		t.Fatalf("Run over leftovers failed: %v", err)
	}
	if want := 1 + 4*workload.Repetitions; summary.Measurements != want {
		t.Errorf("measurements = %d, want %d", summary.Measurements, want)
	}
}
