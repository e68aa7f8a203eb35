package command

import (
	"errors"
	"fmt"
)

// ErrPanic is matched by errors from executors that panicked.
var ErrPanic = errors.New("command executor panicked")

// ExecutionError wraps an executor failure.
type ExecutionError struct {
	OwnerID string
	Command string
	Err     error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	owner := e.OwnerID
	if owner == "" {
		owner = "console"
	}
	return fmt.Sprintf("command %q of %s: %v", e.Command, owner, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
