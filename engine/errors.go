package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSystem is returned for engine names outside KnownSystems.
	ErrUnknownSystem = errors.New("unknown engine")

	// ErrUnsupported is returned when a step has no statement mapping.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrNotConnected is returned by Exec before Connect.
	ErrNotConnected = errors.New("engine not connected")
)

// StatementError tags an execution failure with the engine and statement.
type StatementError struct {
	System    System
	Statement string
	Err       error
}

// Error returns a formatted error string.
func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: execute %q: %v", e.System, e.Statement, e.Err)
}

// Unwrap returns the driver error for errors.Is/As compatibility.
func (e *StatementError) Unwrap() error {
	return e.Err
}
