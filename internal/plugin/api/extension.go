package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/command"
	"github.com/dshills/cutlet/internal/event"
	"github.com/dshills/cutlet/internal/timer"
)

// Kind is the extension kind.
type Kind string

const (
	// KindModule extensions provide host-level facilities.
	KindModule Kind = "module"

	// KindBot extensions implement messenger-facing behavior and may
	// depend on modules.
	KindBot Kind = "bot"
)

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// Extension is implemented by every extension entry point.
// Errors and panics returned from hooks are contained by the host.
type Extension interface {
	OnLoad() error
	OnEnable() error
	OnDisable() error
}

// Binder is implemented by extensions that want their Runtime.
type Binder interface {
	Bind(rt Runtime)
}

// Factory constructs a native extension.
type Factory func() Extension

// Runtime is the host facing side of one extension.
type Runtime interface {
	// Name is the descriptor name.
	Name() string

	// Kind is the extension kind.
	Kind() Kind

	// ID is unique across kinds, e.g. "bot:echo".
	ID() string

	// Logger is named after the extension.
	Logger() *zap.Logger

	// Dir is the extension's working directory.
	Dir() string

	// Resource returns a resource from the working directory, falling back
	// to the archive.
	Resource(path string) ([]byte, error)

	// Config returns the parsed config.yml, empty when absent.
	Config() map[string]any

	// SaveDefaultConfig copies the bundled config.yml into Dir unless it
	// already exists there.
	SaveDefaultConfig() error

	// RegisterCommand adds a command to the extension's namespace.
	RegisterCommand(cmd *command.Command) bool

	// Listen registers event listeners owned by the extension.
	Listen(listeners ...event.Listener) ([]event.Registration, error)

	// Unlisten removes one listener.
	Unlisten(id string) bool

	// EventType resolves a declared event type by name.
	EventType(name string) (*event.Type, error)

	// DeclareEvent returns the type with the given name, declaring it as a
	// child of CustomType when it does not exist yet.
	DeclareEvent(name string) (*event.Type, error)

	// Fire dispatches an event on the shared bus. filter may be nil.
	Fire(ctx context.Context, e event.Event, filter event.Filter) event.FireResult

	// After schedules fn once after d.
	After(d time.Duration, fn timer.Func) (*timer.Task, error)

	// Every schedules fn every interval.
	Every(interval time.Duration, fn timer.Func) (*timer.Task, error)

	// Cron schedules fn on a cron spec.
	Cron(spec string, fn timer.Func) (*timer.Task, error)

	// Translate resolves a message key.
	Translate(key string) string

	// Peer returns another loaded extension: same kind first, then modules
	// for bots.
	Peer(name string) (Extension, bool)
}

// Base provides no-op hooks and keeps the Runtime.
type Base struct {
	rt Runtime
}

// Bind implements Binder.
func (b *Base) Bind(rt Runtime) { b.rt = rt }

// Runtime returns the bound runtime, or nil before Bind.
func (b *Base) Runtime() Runtime { return b.rt }

// OnLoad implements Extension.
func (b *Base) OnLoad() error { return nil }

// OnEnable implements Extension.
func (b *Base) OnEnable() error { return nil }

// OnDisable implements Extension.
func (b *Base) OnDisable() error { return nil }
