package api

import "github.com/dshills/cutlet/internal/event"

// Host event types.
var (
	// ExtensionType is the parent of all lifecycle events and owns their
	// listener bucket.
	ExtensionType = event.NewType("extension", nil, event.WithHandlerList())

	// ExtensionEnabledType is fired after an extension was enabled.
	ExtensionEnabledType = event.NewType("extension.enabled", ExtensionType)

	// ExtensionDisabledType is fired after an extension was disabled.
	ExtensionDisabledType = event.NewType("extension.disabled", ExtensionType)

	// CommandType is fired before a console line is dispatched. Cancelling
	// it suppresses the command.
	CommandType = event.NewType("command", nil, event.WithHandlerList())

	// CustomType is the parent for event types declared by extensions.
	CustomType = event.NewType("custom", nil, event.WithHandlerList())
)

// EventTypes returns the host types to declare on a bus.
func EventTypes() []*event.Type {
	return []*event.Type{ExtensionType, ExtensionEnabledType, ExtensionDisabledType, CommandType, CustomType}
}

// ExtensionEvent reports a lifecycle transition.
type ExtensionEvent struct {
	Type *event.Type
	Kind Kind
	Name string
}

// EventType implements event.Event.
func (e *ExtensionEvent) EventType() *event.Type { return e.Type }

// EventData implements DataEvent.
func (e *ExtensionEvent) EventData() map[string]any {
	return map[string]any{"kind": string(e.Kind), "name": e.Name}
}

// CommandEvent carries a console line before dispatch.
type CommandEvent struct {
	event.Cancellation
	Sender string
	Alias  string
	Args   []string
}

// EventType implements event.Event.
func (e *CommandEvent) EventType() *event.Type { return CommandType }

// EventData implements DataEvent.
func (e *CommandEvent) EventData() map[string]any {
	args := make([]any, len(e.Args))
	for i, a := range e.Args {
		args[i] = a
	}
	return map[string]any{"sender": e.Sender, "alias": e.Alias, "args": args}
}

// DataEvent exposes an event payload to Lua listeners.
type DataEvent interface {
	event.Event
	EventData() map[string]any
}
