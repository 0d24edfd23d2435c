// Package engine adapts each supported database to one timed-execution
// contract. An Engine knows its dialect, its transaction discipline and how to
// return its database to an empty state; callers never branch on the system.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/weiihann/ddlbench/workload"
)

// System identifies a database engine under test.
type System string

const (
	SQLite    System = "sqlite"
	Postgres  System = "postgres"
	DuckDB    System = "duckdb"
	Snowflake System = "snowflake"
)

// KnownSystems returns the list of supported engines.
func KnownSystems() []System {
	return []System{SQLite, Postgres, DuckDB, Snowflake}
}

// ParseSystem maps a name to a System.
func ParseSystem(name string) (System, error) {
	sys := System(strings.ToLower(name))
	if !slices.Contains(KnownSystems(), sys) {
		return "", fmt.Errorf("%w %q", ErrUnknownSystem, name)
	}

	return sys, nil
}

// Default namespaces for engines that need one.
const (
	DefaultSchema          = "ddlbench"
	DefaultWarehouseSchema = "ddlbench_experiment"
)

// Options holds the connection settings of one engine. Path applies to
// file-backed engines, DSN to server-backed ones.
type Options struct {
	Path   string
	DSN    string
	Schema string
}

// Engine is an open (or openable) database under test.
type Engine struct {
	system     System
	driver     string
	dsn        string
	path       string
	dialect    Dialect
	discipline Discipline
	reset      resetFunc

	// freshSession closes and reopens the handle at every Connect.
	freshSession bool

	db *sql.DB
}

// New returns the Engine for sys. It does not connect.
func New(sys System, opts Options) (*Engine, error) {
	switch sys {
	case SQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite: path is required")
		}

		return &Engine{
			system:       SQLite,
			driver:       "sqlite3",
			dsn:          opts.Path,
			path:         opts.Path,
			dialect:      sqliteDialect{},
			discipline:   ExplicitCommit,
			reset:        removeFiles,
			freshSession: true,
		}, nil

	case Postgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres: dsn is required")
		}

		return &Engine{
			system:       Postgres,
			driver:       "pgx",
			dsn:          opts.DSN,
			dialect:      postgresDialect{schemaDialect{schema: schemaOr(opts.Schema, DefaultSchema)}},
			discipline:   ExplicitCommit,
			reset:        resetSchema,
			freshSession: true,
		}, nil

	case DuckDB:
		return &Engine{
			system:     DuckDB,
			driver:     "duckdb",
			dsn:        opts.Path,
			dialect:    duckdbDialect{schemaDialect{schema: schemaOr(opts.Schema, DefaultSchema)}},
			discipline: AutoCommit,
			reset:      resetSchema,
		}, nil

	case Snowflake:
		if opts.DSN == "" {
			return nil, fmt.Errorf("snowflake: dsn is required")
		}

		return &Engine{
			system:     Snowflake,
			driver:     "snowflake",
			dsn:        opts.DSN,
			dialect:    snowflakeDialect{schemaDialect{schema: schemaOr(opts.Schema, DefaultWarehouseSchema)}},
			discipline: CursorScoped,
			reset:      resetSchema,
		}, nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownSystem, sys)
	}
}

func schemaOr(schema, fallback string) string {
	if schema == "" {
		return fallback
	}

	return schema
}

// System returns the engine identity.
func (e *Engine) System() System { return e.system }

// Discipline returns the transaction discipline statements run under.
func (e *Engine) Discipline() Discipline { return e.discipline }

// Statement translates a plan step into this engine's dialect.
func (e *Engine) Statement(step workload.Step) (Statement, error) {
	stmt, err := BuildStatement(e.dialect, step)
	if err != nil {
		return Statement{}, fmt.Errorf("%s: %w", e.system, err)
	}

	return stmt, nil
}

// Connect opens the handle if needed, reopens it for engines that want a
// fresh session per phase, and makes sure the working namespace exists.
func (e *Engine) Connect(ctx context.Context) error {
	if e.db != nil && e.freshSession {
		if err := e.closeDB(); err != nil {
			return fmt.Errorf("%s: close session: %w", e.system, err)
		}
	}

	if e.db == nil {
		db, err := sql.Open(e.driver, e.dsn)
		if err != nil {
			return fmt.Errorf("%s: open: %w", e.system, err)
		}

		// One session: namespace selection and catalog state must stick.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := db.PingContext(ctx); err != nil {
			db.Close()

			return fmt.Errorf("%s: ping: %w", e.system, err)
		}

		e.db = db
	}

	for _, q := range e.dialect.Namespace() {
		if _, err := e.db.ExecContext(ctx, q); err != nil {
			return &StatementError{System: e.system, Statement: q, Err: err}
		}
	}

	return nil
}

// Exec runs stmt under the engine's discipline. Errors are tagged with the
// engine and the statement text.
func (e *Engine) Exec(ctx context.Context, stmt Statement) error {
	if e.db == nil {
		return &StatementError{System: e.system, Statement: stmt.Text(), Err: ErrNotConnected}
	}

	if err := e.discipline.Exec(ctx, e.db, stmt); err != nil {
		return &StatementError{System: e.system, Statement: stmt.Text(), Err: err}
	}

	return nil
}

// Reset returns the database to an empty, experiment-ready state.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.reset(ctx, e); err != nil {
		return fmt.Errorf("%s: reset: %w", e.system, err)
	}

	return nil
}

// Close releases the handle. It is safe to call more than once.
func (e *Engine) Close() error {
	return e.closeDB()
}

func (e *Engine) closeDB() error {
	if e.db == nil {
		return nil
	}

	err := e.db.Close()
	e.db = nil

	return err
}
