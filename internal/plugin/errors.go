package plugin

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Extension system errors.
var (
	// ErrNotFound is returned when no extension has the given name.
	ErrNotFound = errors.New("extension not found")

	// ErrNoDescriptor is returned when an archive has no descriptor file.
	ErrNoDescriptor = errors.New("archive has no descriptor")

	// ErrInvalidDescriptor is returned when descriptor validation fails.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrDuplicateName is matched by *ConflictError.
	ErrDuplicateName = errors.New("duplicate extension name")

	// ErrInvalidTransition is returned for a lifecycle move the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrDependencyNotFound is returned when a hard dependency is absent.
	ErrDependencyNotFound = errors.New("dependency not found")

	// ErrCyclicDependency is returned for a dependency cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrFailedDependency is returned when a dependency failed.
	ErrFailedDependency = errors.New("failed dependency")

	// ErrMissingModule is returned when a bot requires a module that is
	// not loaded.
	ErrMissingModule = errors.New("required module not loaded")

	// ErrPanic is returned for a panic recovered from extension code.
	ErrPanic = errors.New("extension panicked")

	// ErrClosed is returned after the manager was closed.
	ErrClosed = errors.New("manager is closed")
)

// DiscoveryError reports an archive skipped during discovery.
type DiscoveryError struct {
	Archive string
	Err     error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Archive, e.Err)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error { return e.Err }

// ConflictError reports two archives declaring the same name. First is the
// archive that was kept.
type ConflictError struct {
	Name   string
	First  string
	Second string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate name %q in %s and %s", e.Name, e.First, e.Second)
}

// Is allows errors.Is to match ConflictError with ErrDuplicateName.
func (e *ConflictError) Is(target error) bool {
	return target == ErrDuplicateName
}

// Reason classifies a ResolutionError.
type Reason int

// Resolution failure reasons.
const (
	ReasonNotFound Reason = iota
	ReasonCycle
	ReasonFailedDependency
	ReasonMissingModule
)

// String returns a string representation of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "dependency not found"
	case ReasonCycle:
		return "cyclic dependency"
	case ReasonFailedDependency:
		return "failed dependency"
	case ReasonMissingModule:
		return "required module not loaded"
	default:
		return "unknown"
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonNotFound:
		return ErrDependencyNotFound
	case ReasonCycle:
		return ErrCyclicDependency
	case ReasonFailedDependency:
		return ErrFailedDependency
	default:
		return ErrMissingModule
	}
}

// ResolutionError reports why a descriptor could not be resolved.
type ResolutionError struct {
	Name       string
	Reason     Reason
	Dependency string

	// Path is the cycle, first and last element equal. Only set for
	// ReasonCycle.
	Path []string

	// Err is the dependency's own failure for ReasonFailedDependency.
	Err error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolve %s: %s", e.Name, e.Reason)
	switch {
	case e.Reason == ReasonCycle:
		fmt.Fprintf(&b, " %s", strings.Join(e.Path, " -> "))
	case e.Dependency != "":
		fmt.Fprintf(&b, " %s", e.Dependency)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the reason sentinel and the dependency's failure.
func (e *ResolutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Reason.sentinel(), e.Err}
	}
	return []error{e.Reason.sentinel()}
}

// InstantiationError reports a failed entry point construction or load
// hook.
type InstantiationError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiate %s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *InstantiationError) Unwrap() error { return e.Err }

// ActivationError reports a failed enable.
type ActivationError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *ActivationError) Error() string {
	return fmt.Sprintf("enable %s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ActivationError) Unwrap() error { return e.Err }

// protect runs fn and turns a panic into an error matching ErrPanic.
// The error carries the panicking goroutine's stack.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn()
}
