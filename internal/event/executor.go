package event

import (
	"context"
	"runtime/debug"
	"time"
)

// Result is the outcome of executing one handler.
type Result struct {
	Err      error
	Panicked bool
	Skipped  bool
	Duration time.Duration
}

// PanicHandler is called after a handler panic has been recovered.
type PanicHandler func(e Event, value any, stack []byte)

// executor runs handlers with panic recovery and timing.
type executor struct {
	panicHandler PanicHandler
}

// execute runs handler with e. Panics are converted into a *PanicError.
func (x *executor) execute(ctx context.Context, e Event, handler Handler) (result Result) {
	select {
	case <-ctx.Done():
		return Result{Err: ctx.Err(), Skipped: true}
	default:
	}

	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()
			result.Panicked = true
			result.Err = &PanicError{Value: r, Stack: stack}

			if x.panicHandler != nil {
				func() {
					// A panicking panic handler must not take the bus down.
					defer func() { _ = recover() }()
					x.panicHandler(e, r, stack)
				}()
			}
		}
	}()

	result.Err = handler.Handle(ctx, e)
	return result
}
