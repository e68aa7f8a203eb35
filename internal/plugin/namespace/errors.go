package namespace

import (
	"errors"
	"fmt"
)

var (
	// ErrSymbolNotFound is matched by *SymbolError.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrDuplicateNamespace is returned when opening a name twice.
	ErrDuplicateNamespace = errors.New("namespace already open")

	// ErrBadEntryPoint is returned when an entry point does not produce
	// an extension.
	ErrBadEntryPoint = errors.New("entry point is not an extension")

	// ErrClosed is returned by a closed namespace.
	ErrClosed = errors.New("namespace is closed")
)

// SymbolError reports a symbol no namespace could provide.
type SymbolError struct {
	Symbol    string
	Namespace string
}

// Error implements the error interface.
func (e *SymbolError) Error() string {
	return fmt.Sprintf("symbol %q not found from namespace %q", e.Symbol, e.Namespace)
}

// Is allows errors.Is to match SymbolError with ErrSymbolNotFound.
func (e *SymbolError) Is(target error) bool {
	return target == ErrSymbolNotFound
}
