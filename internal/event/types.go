package event

import (
	"context"
	"fmt"
	"strings"
)

// Priority determines listener execution order.
// Lower values execute first.
type Priority int

const (
	// PriorityLowest runs first and has the most influence over the event.
	PriorityLowest Priority = iota

	// PriorityLow runs after PriorityLowest.
	PriorityLow

	// PriorityNormal is the default priority.
	PriorityNormal

	// PriorityHigh runs after PriorityNormal.
	PriorityHigh

	// PriorityHighest runs last among listeners allowed to modify the event.
	PriorityHighest

	// PriorityMonitor is for listeners that only observe the final outcome.
	PriorityMonitor
)

var priorityNames = [...]string{"LOWEST", "LOW", "NORMAL", "HIGH", "HIGHEST", "MONITOR"}

// String returns the priority name.
func (p Priority) String() string {
	if p < PriorityLowest || p > PriorityMonitor {
		return fmt.Sprintf("Priority(%d)", int(p))
	}
	return priorityNames[p]
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	return p >= PriorityLowest && p <= PriorityMonitor
}

// ParsePriority parses a priority name case-insensitively.
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return Priority(i), nil
		}
	}
	return PriorityNormal, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
}

// Owner is the extension a listener belongs to.
type Owner interface {
	// ID uniquely identifies the owner across extension kinds.
	ID() string

	// Enabled reports whether the owner may currently register listeners.
	Enabled() bool
}

// Filter decides per owner whether a fired event is delivered.
type Filter func(owner Owner) bool

// Handler processes an event.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, e Event) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Typed adapts a function taking a concrete event type. Events of other Go
// types are ignored.
func Typed[T Event](fn func(ctx context.Context, e T) error) HandlerFunc {
	return func(ctx context.Context, e Event) error {
		v, ok := e.(T)
		if !ok {
			return nil
		}
		return fn(ctx, v)
	}
}

// Listener is one registration request.
type Listener struct {
	// Type is the event type listened for. Subtypes are delivered too.
	Type *Type

	// Priority places the listener in the delivery order.
	Priority Priority

	// IgnoreCancelled delivers the event even after it was cancelled.
	IgnoreCancelled bool

	// IgnoreFilter delivers the event even when the Fire filter rejects
	// the owner.
	IgnoreFilter bool

	// Handler receives the event.
	Handler Handler
}

func (l Listener) validate() error {
	switch {
	case l.Type == nil:
		return fmt.Errorf("%w: no event type", ErrInvalidListener)
	case l.Handler == nil:
		return fmt.Errorf("%w: no handler for %s", ErrInvalidListener, l.Type.Name())
	case !l.Priority.Valid():
		return fmt.Errorf("%w: %s", ErrInvalidListener, l.Priority)
	}
	return nil
}

// Registration identifies an accepted listener.
type Registration struct {
	ID       string
	OwnerID  string
	Type     *Type
	Priority Priority
}

// FireResult summarizes one Fire call.
type FireResult struct {
	// Delivered counts listeners that were invoked.
	Delivered int

	// Skipped counts listeners passed over because of cancellation or the
	// filter.
	Skipped int

	// Errors holds one DispatchError per failing listener.
	Errors []error

	// Cancelled is the event's final cancellation state.
	Cancelled bool
}

// Stats contains bus statistics.
type Stats struct {
	EventsFired       uint64
	HandlersExecuted  uint64
	HandlerErrors     uint64
	HandlerPanics     uint64
	ActiveListeners   int
	AvgDeliveryTimeNs int64
}
