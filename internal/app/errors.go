package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("application already started")

	// ErrNotStarted is returned by Run before Start succeeded.
	ErrNotStarted = errors.New("application not started")
)

// DirError reports an extension directory that could not be created.
// It is fatal to Start.
type DirError struct {
	Path string
	Err  error
}

func (e *DirError) Error() string {
	return fmt.Sprintf("create directory %s: %v", e.Path, e.Err)
}

func (e *DirError) Unwrap() error {
	return e.Err
}
