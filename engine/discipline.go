package engine

import (
	"context"
	"database/sql"
	"fmt"
)

// Discipline is the transaction handling an engine requires around each
// statement.
type Discipline int

const (
	// AutoCommit runs every statement directly on the handle.
	AutoCommit Discipline = iota
	// ExplicitCommit wraps each statement in BEGIN/COMMIT and rolls back
	// when it fails.
	ExplicitCommit
	// CursorScoped runs each statement on a short-lived connection checked
	// out of the handle, independent of any outer transaction.
	CursorScoped
)

func (d Discipline) String() string {
	switch d {
	case AutoCommit:
		return "auto-commit"
	case ExplicitCommit:
		return "explicit-commit"
	case CursorScoped:
		return "cursor-scoped"
	default:
		return fmt.Sprintf("discipline(%d)", int(d))
	}
}

// Handle is the part of *sql.DB a discipline needs.
type Handle interface {
	runner
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Conn(ctx context.Context) (*sql.Conn, error)
}

// runner is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Exec runs stmt on h. It returns once the statement and any commit the
// discipline requires have completed.
func (d Discipline) Exec(ctx context.Context, h Handle, stmt Statement) error {
	switch d {
	case AutoCommit:
		return run(ctx, h, stmt)

	case ExplicitCommit:
		tx, err := h.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}

		if err := run(ctx, tx, stmt); err != nil {
			_ = tx.Rollback()

			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}

		return nil

	case CursorScoped:
		conn, err := h.Conn(ctx)
		if err != nil {
			return fmt.Errorf("checkout connection: %w", err)
		}
		defer conn.Close()

		return run(ctx, conn, stmt)

	default:
		return fmt.Errorf("unknown %s", d)
	}
}

func run(ctx context.Context, r runner, stmt Statement) error {
	for _, q := range stmt.SQL {
		if !stmt.Rows {
			if _, err := r.ExecContext(ctx, q); err != nil {
				return err
			}

			continue
		}

		if err := drain(ctx, r, q); err != nil {
			return err
		}
	}

	return nil
}

func drain(ctx context.Context, r runner, q string) error {
	rows, err := r.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
	}

	return rows.Err()
}
