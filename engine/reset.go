package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

type resetFunc func(ctx context.Context, e *Engine) error

// removeFiles closes a file-backed engine and deletes its database file and
// journals. The next Connect starts from an empty file.
func removeFiles(_ context.Context, e *Engine) error {
	if err := e.closeDB(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if e.path == "" || e.path == ":memory:" {
		return nil
	}

	var errs []error

	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		err := os.Remove(e.path + suffix)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// resetSchema runs the dialect's teardown: drop and recreate the working
// schema, or drop the dedicated experiment schema which Connect recreates.
func resetSchema(ctx context.Context, e *Engine) error {
	if e.db == nil {
		return ErrNotConnected
	}

	for _, q := range e.dialect.ResetSchema() {
		if _, err := e.db.ExecContext(ctx, q); err != nil {
			return &StatementError{System: e.system, Statement: q, Err: err}
		}
	}

	return nil
}
