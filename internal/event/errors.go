package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for the event bus.
var (
	// ErrNilOwner is returned when registering without an owner.
	ErrNilOwner = errors.New("listener owner cannot be nil")

	// ErrOwnerNotEnabled is returned when a disabled owner registers listeners.
	ErrOwnerNotEnabled = errors.New("owner is not enabled")

	// ErrInvalidListener is returned for malformed listener tuples.
	ErrInvalidListener = errors.New("invalid listener")

	// ErrNoHandlerList is returned when no type in an event's hierarchy
	// declares a handler list.
	ErrNoHandlerList = errors.New("event type hierarchy declares no handler list")

	// ErrUnknownType is returned when looking up an undeclared type name.
	ErrUnknownType = errors.New("unknown event type")

	// ErrDuplicateType is returned when two different types share a name.
	ErrDuplicateType = errors.New("duplicate event type")

	// ErrUnknownPriority is returned by ParsePriority.
	ErrUnknownPriority = errors.New("unknown priority")

	// ErrHandlerPanic is matched by PanicError.
	ErrHandlerPanic = errors.New("handler panicked")
)

// DispatchError wraps a listener failure with its owner and event type.
type DispatchError struct {
	OwnerID string
	Type    string
	Err     error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("listener of %s for %s: %v", e.OwnerID, e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// PanicError wraps a panic value as an error.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
