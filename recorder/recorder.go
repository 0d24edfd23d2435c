// Package recorder persists measurements to an append-only SQLite log with
// one table per engine.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/weiihann/ddlbench/engine"
	"github.com/weiihann/ddlbench/harness"
	"github.com/weiihann/ddlbench/workload"
)

// DefaultPath is the log file used when none is configured.
const DefaultPath = "experiment_logs.db"

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("recorder: closed")

// Row is a persisted measurement.
type Row struct {
	ID int64 `json:"id"`
	harness.Measurement
}

// Recorder appends measurements to the log. Rows are never updated or
// deleted.
type Recorder struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// TableName returns the log table of sys. SQLite reserves the "sqlite_"
// prefix, hence "db_logs".
func TableName(sys engine.System) string {
	return string(sys) + "db_logs"
}

// Open opens (creating if needed) the log at path and makes sure every
// engine table exists. Opening the same file again is safe.
func Open(ctx context.Context, path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &Recorder{db: db, path: path}

	if err := r.initSchema(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("recorder: initialize schema: %w", err)
	}

	return r, nil
}

func (r *Recorder) initSchema(ctx context.Context) error {
	for _, sys := range engine.KnownSystems() {
		table := TableName(sys)

		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id        TEXT NOT NULL,
				system_name   TEXT NOT NULL,
				ddl_command   TEXT NOT NULL,
				query_text    TEXT NOT NULL,
				target_object TEXT NOT NULL,
				granularity   INTEGER NOT NULL,
				repetition_nr INTEGER NOT NULL,
				object_index  INTEGER,
				query_runtime REAL NOT NULL,
				start_time    DATETIME NOT NULL,
				end_time      DATETIME NOT NULL
			)`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_run ON %s (run_id)`, table, table),
		}

		for _, stmt := range stmts {
			if _, err := r.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", table, err)
			}
		}
	}

	return nil
}

// Path returns the log file location.
func (r *Recorder) Path() string { return r.path }

// Record appends m in its own transaction. Either the row commits or it does
// not exist.
func (r *Recorder) Record(ctx context.Context, m harness.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	var index sql.NullInt64
	if m.ObjectIndex != workload.NoIndex {
		index = sql.NullInt64{Int64: int64(m.ObjectIndex), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recorder: begin: %w", err)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			run_id, system_name, ddl_command, query_text, target_object,
			granularity, repetition_nr, object_index, query_runtime,
			start_time, end_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, TableName(m.System)),
		m.RunID,
		string(m.System),
		string(m.Operation),
		m.Statement,
		string(m.Object),
		int(m.Granularity),
		m.Repetition,
		index,
		m.Elapsed.Seconds(),
		m.Start.UTC(),
		m.End.UTC(),
	)
	if err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("recorder: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recorder: commit: %w", err)
	}

	return nil
}

// Rows returns the rows of sys in insertion order, limited to runID when it
// is not empty.
func (r *Recorder) Rows(ctx context.Context, sys engine.System, runID string) ([]Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	query := fmt.Sprintf(`
		SELECT id, run_id, system_name, ddl_command, query_text, target_object,
			granularity, repetition_nr, object_index, query_runtime,
			start_time, end_time
		FROM %s`, TableName(sys))

	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}

	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recorder: query %s: %w", sys, err)
	}
	defer rows.Close()

	var out []Row

	for rows.Next() {
		var (
			row     Row
			sysName string
			op      string
			object  string
			gran    int
			index   sql.NullInt64
			seconds float64
		)

		if err := rows.Scan(
			&row.ID, &row.RunID, &sysName, &op, &row.Statement, &object,
			&gran, &row.Repetition, &index, &seconds,
			&row.Start, &row.End,
		); err != nil {
			return nil, fmt.Errorf("recorder: scan %s: %w", sys, err)
		}

		row.System = engine.System(sysName)
		row.Operation = workload.Operation(op)
		row.Object = workload.ObjectKind(object)
		row.Granularity = workload.Granularity(gran)
		row.Elapsed = time.Duration(seconds * float64(time.Second))

		row.ObjectIndex = workload.NoIndex
		if index.Valid {
			row.ObjectIndex = int(index.Int64)
		}

		out = append(out, row)
	}

	return out, rows.Err()
}

// LatestRunID returns the run id of the most recent row of sys, or "" when
// the table is empty.
func (r *Recorder) LatestRunID(ctx context.Context, sys engine.System) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrClosed
	}

	var runID string

	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT run_id FROM %s ORDER BY id DESC LIMIT 1", TableName(sys)),
	).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("recorder: latest run %s: %w", sys, err)
	}

	return runID, nil
}

// Close releases the database handle. Closing twice is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true

	return r.db.Close()
}
