package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cutlet/internal/command"
	"github.com/dshills/cutlet/internal/event"
	"github.com/dshills/cutlet/internal/plugin/api"
	"github.com/dshills/cutlet/internal/plugin/namespace"
	"github.com/dshills/cutlet/internal/resource"
	"github.com/dshills/cutlet/internal/timer"
)

// ConfigFile is the per-extension configuration resource.
const ConfigFile = "config.yml"

// Host manages a single extension's lifecycle and the registrations it
// owns. It implements api.Runtime for the extension.
type Host struct {
	mu sync.RWMutex

	// Identity
	desc *Descriptor
	id   string
	dir  string

	manager *Manager
	logger  *zap.Logger

	// Runtime
	ns  *namespace.Namespace
	ext api.Extension

	// State
	state  State
	err    error
	loaded bool

	config map[string]any

	// Resource tracking
	listeners map[string]bool
}

func newHost(m *Manager, desc *Descriptor) *Host {
	return &Host{
		desc:      desc,
		id:        string(m.kind) + ":" + desc.Name,
		dir:       filepath.Join(m.dir, desc.Name),
		manager:   m,
		logger:    m.logger.Named(desc.Name),
		state:     StateDiscovered,
		config:    make(map[string]any),
		listeners: make(map[string]bool),
	}
}

// Name returns the extension name.
func (h *Host) Name() string { return h.desc.Name }

// Kind returns the extension kind.
func (h *Host) Kind() api.Kind { return h.manager.kind }

// ID returns "<kind>:<name>".
func (h *Host) ID() string { return h.id }

// Descriptor returns the extension descriptor.
func (h *Host) Descriptor() *Descriptor { return h.desc }

// Logger returns the extension logger.
func (h *Host) Logger() *zap.Logger { return h.logger }

// Dir returns the working directory. It is created on demand.
func (h *Host) Dir() string { return h.dir }

// State returns the current lifecycle state.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Enabled reports whether the extension is enabled.
func (h *Host) Enabled() bool { return h.State() == StateEnabled }

// Err returns the error that failed the extension.
func (h *Host) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Extension returns the extension instance, nil before it was loaded.
func (h *Host) Extension() api.Extension {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ext
}

// WasLoaded reports whether the extension ever reached StateLoaded.
func (h *Host) WasLoaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loaded
}

func (h *Host) transition(next State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.state.CanTransition(next) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, h.id, h.state, next)
	}
	h.state = next
	if next == StateLoaded {
		h.loaded = true
	}
	return nil
}

func (h *Host) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateFailed
	h.err = err
}

// Resource returns a resource from the working directory, falling back to
// the archive.
func (h *Host) Resource(path string) ([]byte, error) {
	return h.resources(h.dir).Read(path)
}

func (h *Host) resources(override string) *resource.Lookup {
	h.mu.RLock()
	ns := h.ns
	h.mu.RUnlock()
	if ns == nil {
		return resource.New(override, nil)
	}
	return ns.Resources(override)
}

// Config returns a copy of the parsed config.yml.
func (h *Host) Config() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	config := make(map[string]any, len(h.config))
	for k, v := range h.config {
		config[k] = v
	}
	return config
}

// loadConfig parses config.yml through the resource lookup. A missing
// file is an empty configuration. A malformed one is logged and ignored.
func (h *Host) loadConfig() {
	data, err := h.Resource(ConfigFile)
	if err != nil {
		if !errors.Is(err, resource.ErrNotFound) {
			h.logger.Warn("cannot read config", zap.Error(err))
		}
		return
	}

	config := make(map[string]any)
	if err := yaml.Unmarshal(data, &config); err != nil {
		h.logger.Warn("invalid config", zap.String("file", ConfigFile), zap.Error(err))
		return
	}

	h.mu.Lock()
	h.config = config
	h.mu.Unlock()
}

// SaveDefaultConfig copies the bundled config.yml into Dir unless it
// already exists there.
func (h *Host) SaveDefaultConfig() error {
	target := filepath.Join(h.dir, ConfigFile)
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	data, err := h.resources("").Read(ConfigFile)
	if err != nil {
		return fmt.Errorf("save default config for %s: %w", h.id, err)
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("save default config for %s: %w", h.id, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("save default config for %s: %w", h.id, err)
	}
	h.logger.Info("saved default config", zap.String("path", target))
	return nil
}

// RegisterCommand adds a command to the extension's namespace.
func (h *Host) RegisterCommand(cmd *command.Command) bool {
	return h.manager.commands.Register(h, cmd)
}

// Listen registers listeners owned by the extension.
func (h *Host) Listen(listeners ...event.Listener) ([]event.Registration, error) {
	regs, err := h.manager.bus.Register(h, listeners...)

	h.mu.Lock()
	for _, reg := range regs {
		h.listeners[reg.ID] = true
	}
	h.mu.Unlock()
	return regs, err
}

// Unlisten removes a listener previously registered by this extension.
func (h *Host) Unlisten(id string) bool {
	h.mu.Lock()
	owned := h.listeners[id]
	delete(h.listeners, id)
	h.mu.Unlock()

	if !owned {
		return false
	}
	return h.manager.bus.Unregister(id)
}

// EventType resolves a declared event type.
func (h *Host) EventType(name string) (*event.Type, error) {
	return h.manager.bus.Lookup(name)
}

// DeclareEvent returns the named type, declaring it under api.CustomType
// when it is unknown.
func (h *Host) DeclareEvent(name string) (*event.Type, error) {
	if t, err := h.manager.bus.Lookup(name); err == nil {
		return t, nil
	}
	t := event.NewType(name, api.CustomType)
	if err := h.manager.bus.Declare(t); err != nil {
		if errors.Is(err, event.ErrDuplicateType) {
			return h.manager.bus.Lookup(name)
		}
		return nil, err
	}
	h.logger.Debug("declared event type", zap.String("type", name))
	return t, nil
}

// Fire dispatches an event on the shared bus.
func (h *Host) Fire(ctx context.Context, e event.Event, filter event.Filter) event.FireResult {
	return h.manager.bus.Fire(ctx, e, filter)
}

// After schedules fn once after d.
func (h *Host) After(d time.Duration, fn timer.Func) (*timer.Task, error) {
	return h.manager.scheduler.After(h.id, d, fn)
}

// Every schedules fn every interval.
func (h *Host) Every(interval time.Duration, fn timer.Func) (*timer.Task, error) {
	return h.manager.scheduler.Every(h.id, interval, fn)
}

// Cron schedules fn on a cron spec.
func (h *Host) Cron(spec string, fn timer.Func) (*timer.Task, error) {
	return h.manager.scheduler.Cron(h.id, spec, fn)
}

// Translate resolves a message key.
func (h *Host) Translate(key string) string {
	return h.manager.translator.Translate(key)
}

// Peer returns another loaded extension of the same kind, or a module for
// bots.
func (h *Host) Peer(name string) (api.Extension, bool) {
	for m := h.manager; m != nil; m = m.parent {
		if other, ok := m.Get(name); ok && other != h {
			switch other.State() {
			case StateLoaded, StateEnabled:
				return other.Extension(), true
			}
		}
	}
	return nil, false
}

// revoke removes every listener, command and task owned by the extension.
func (h *Host) revoke() {
	listeners := h.manager.bus.UnregisterAll(h)
	commands := h.manager.commands.UnregisterAll(h)
	tasks := h.manager.scheduler.CancelAll(h.id)

	h.mu.Lock()
	h.listeners = make(map[string]bool)
	h.mu.Unlock()

	h.logger.Debug("revoked registrations",
		zap.Int("listeners", listeners),
		zap.Int("commands", commands),
		zap.Int("tasks", tasks))
}

// Info is a snapshot of a host for listings.
type Info struct {
	Name    string
	Kind    api.Kind
	Version string
	State   State
	Err     error
}

// Info returns a snapshot of the host.
func (h *Host) Info() Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Info{
		Name:    h.desc.Name,
		Kind:    h.manager.kind,
		Version: h.desc.Version,
		State:   h.state,
		Err:     h.err,
	}
}
