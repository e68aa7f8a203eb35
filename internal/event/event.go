package event

import "sync/atomic"

// Type describes an event type and its place in the hierarchy.
type Type struct {
	name     string
	parent   *Type
	declares bool
}

// TypeOption configures a Type.
type TypeOption func(*Type)

// WithHandlerList makes the type own the listener bucket for itself and
// every subtype that does not declare its own.
func WithHandlerList() TypeOption {
	return func(t *Type) {
		t.declares = true
	}
}

// NewType declares an event type. parent may be nil for a root type.
func NewType(name string, parent *Type, opts ...TypeOption) *Type {
	t := &Type{name: name, parent: parent}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the logical event name.
func (t *Type) Name() string { return t.name }

// Parent returns the supertype, or nil.
func (t *Type) Parent() *Type { return t.parent }

// String implements fmt.Stringer.
func (t *Type) String() string { return t.name }

// Is reports whether t is other or one of its subtypes.
func (t *Type) Is(other *Type) bool {
	for cur := t; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// declaring returns the nearest type in the chain that owns a handler
// list, or nil.
func (t *Type) declaring() *Type {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.declares {
			return cur
		}
	}
	return nil
}

// Event is a value delivered through the bus.
type Event interface {
	EventType() *Type
}

// Cancellable is an event that listeners may cancel.
type Cancellable interface {
	Event
	Cancelled() bool
	SetCancelled(cancelled bool)
}

// Cancellation implements the cancellation half of Cancellable and is
// meant to be embedded.
type Cancellation struct {
	cancelled atomic.Bool
}

// Cancelled reports whether the event was cancelled.
func (c *Cancellation) Cancelled() bool { return c.cancelled.Load() }

// SetCancelled sets the cancellation flag.
func (c *Cancellation) SetCancelled(v bool) { c.cancelled.Store(v) }

// Generic is a cancellable event carrying free-form data. Events fired
// from Lua extensions use it.
type Generic struct {
	Cancellation
	Kind *Type
	Data map[string]any
}

// NewGeneric creates a Generic event of type t.
func NewGeneric(t *Type, data map[string]any) *Generic {
	if data == nil {
		data = make(map[string]any)
	}
	return &Generic{Kind: t, Data: data}
}

// EventType implements Event.
func (g *Generic) EventType() *Type { return g.Kind }

// EventData returns the event payload.
func (g *Generic) EventData() map[string]any { return g.Data }
