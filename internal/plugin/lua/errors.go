package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrModuleNotFound is returned by require when no source is found.
	ErrModuleNotFound = errors.New("lua module not found")

	// ErrNotFunction is returned when calling a value that is not a function.
	ErrNotFunction = errors.New("value is not a function")

	// ErrPanic is matched by errors produced from recovered Go panics.
	ErrPanic = errors.New("lua call panicked")
)
