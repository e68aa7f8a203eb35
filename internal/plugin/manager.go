package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/command"
	"github.com/dshills/cutlet/internal/event"
	"github.com/dshills/cutlet/internal/i18n"
	"github.com/dshills/cutlet/internal/plugin/api"
	"github.com/dshills/cutlet/internal/plugin/namespace"
	"github.com/dshills/cutlet/internal/timer"
)

// Manager manages the lifecycle of all extensions of one kind.
// It handles discovery, resolution, loading, enabling and disabling.
type Manager struct {
	mu sync.RWMutex

	kind   api.Kind
	dir    string
	logger *zap.Logger

	// Shared services
	bus        *event.Bus
	commands   *command.Registry
	scheduler  *timer.Scheduler
	translator command.Translator
	ownsTimer  bool

	// Symbol resolution
	parent   *Manager
	builtins map[string]api.Factory
	registry *namespace.Registry

	// Hosts by name, in resolution order, and the successful load order
	hosts     map[string]*Host
	order     []*Host
	loadOrder []*Host
	results   map[string]bool

	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the root logger. The manager logs as logger.Named(kind).
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBus sets the shared event bus.
func WithBus(b *event.Bus) Option {
	return func(m *Manager) {
		m.bus = b
	}
}

// WithCommands sets the shared command registry.
func WithCommands(r *command.Registry) Option {
	return func(m *Manager) {
		m.commands = r
	}
}

// WithScheduler sets the shared timer scheduler.
func WithScheduler(s *timer.Scheduler) Option {
	return func(m *Manager) {
		m.scheduler = s
	}
}

// WithTranslator sets the message catalog.
func WithTranslator(t command.Translator) Option {
	return func(m *Manager) {
		m.translator = t
	}
}

// WithParent sets the manager whose extensions this one may depend on
// through a bot's modules list and resolve symbols from.
func WithParent(parent *Manager) Option {
	return func(m *Manager) {
		m.parent = parent
	}
}

// WithBuiltins sets native entry points by name.
func WithBuiltins(builtins map[string]api.Factory) Option {
	return func(m *Manager) {
		m.builtins = builtins
	}
}

// NewManager creates a manager for the extensions of kind found in dir.
// Services not supplied through options are private to the manager.
func NewManager(kind api.Kind, dir string, opts ...Option) *Manager {
	m := &Manager{
		kind:    kind,
		dir:     dir,
		logger:  zap.NewNop(),
		hosts:   make(map[string]*Host),
		results: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.Named(string(kind))
	if m.bus == nil {
		m.bus = event.NewBus(event.WithLogger(m.logger))
		_ = m.bus.Declare(api.EventTypes()...)
	}
	if m.commands == nil {
		m.commands = command.NewRegistry(command.WithLogger(m.logger))
	}
	if m.scheduler == nil {
		m.scheduler = timer.New(timer.WithLogger(m.logger))
		m.ownsTimer = true
	}
	if m.translator == nil {
		m.translator = i18n.New(nil)
	}

	regOpts := []namespace.RegistryOption{
		namespace.WithLogger(m.logger),
		namespace.WithBuiltins(m.builtins),
	}
	if m.parent != nil {
		regOpts = append(regOpts, namespace.WithParent(m.parent.registry))
	}
	m.registry = namespace.NewRegistry(kind, regOpts...)

	return m
}

// Kind returns the managed kind.
func (m *Manager) Kind() api.Kind { return m.kind }

// Dir returns the archive directory.
func (m *Manager) Dir() string { return m.dir }

// Bus returns the event bus.
func (m *Manager) Bus() *event.Bus { return m.bus }

// Commands returns the command registry.
func (m *Manager) Commands() *command.Registry { return m.commands }

// Get returns a host by name.
func (m *Manager) Get(name string) (*Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hosts[name]
	return h, ok
}

// Hosts returns every host in resolution order.
func (m *Manager) Hosts() []*Host {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Host(nil), m.order...)
}

// Loaded returns the successfully loaded hosts in load order.
func (m *Manager) Loaded() []*Host {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Host(nil), m.loadOrder...)
}

// Results returns the load result of every resolved name.
func (m *Manager) Results() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}
	return out
}

// isLoaded reports whether name reached StateLoaded and has not failed.
func (m *Manager) isLoaded(name string) bool {
	h, ok := m.Get(name)
	if !ok {
		return false
	}
	switch h.State() {
	case StateLoaded, StateEnabled:
		return true
	default:
		return false
	}
}

// instantiate opens the namespace, constructs the entry point and runs
// the load hook.
func (m *Manager) instantiate(ctx context.Context, h *Host) error {
	name := h.desc.Name

	ns, err := m.registry.Open(name, h.desc.Archive, h.desc.Dependencies())
	if err != nil {
		return &InstantiationError{Name: name, Err: err}
	}
	h.mu.Lock()
	h.ns = ns
	h.mu.Unlock()

	h.loadConfig()

	var ext api.Extension
	err = protect(func() error {
		var err error
		ext, err = ns.Construct(ctx, h.desc.Main, h)
		return err
	})
	if err == nil {
		h.mu.Lock()
		h.ext = ext
		h.mu.Unlock()
		err = protect(ext.OnLoad)
	}
	if err != nil {
		_ = m.registry.Remove(name)
		return &InstantiationError{Name: name, Err: err}
	}

	if err := h.transition(StateLoaded); err != nil {
		_ = m.registry.Remove(name)
		return &InstantiationError{Name: name, Err: err}
	}

	m.mu.Lock()
	m.loadOrder = append(m.loadOrder, h)
	m.mu.Unlock()

	h.logger.Info("loaded", zap.String("version", h.desc.Version))
	return nil
}

// EnableAll enables every loaded extension in load order. Soft
// dependencies that were loaded are enabled first. Failures are logged,
// contained to the extension and returned joined.
func (m *Manager) EnableAll(ctx context.Context) error {
	var errs []error
	for _, h := range m.Loaded() {
		if err := m.enable(ctx, h, make(map[*Host]bool)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enable enables one loaded extension.
func (m *Manager) Enable(ctx context.Context, name string) error {
	h, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m.enable(ctx, h, make(map[*Host]bool))
}

func (m *Manager) enable(ctx context.Context, h *Host, visiting map[*Host]bool) error {
	switch st := h.State(); st {
	case StateEnabled:
		return nil
	case StateLoaded:
	case StateFailed:
		if err := h.Err(); err != nil && h.WasLoaded() {
			return err
		}
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, h.id, st)
	default:
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, h.id, st)
	}
	if visiting[h] {
		return nil
	}
	visiting[h] = true

	for _, dep := range h.desc.SoftDepend {
		dh, ok := m.Get(dep)
		if !ok || !dh.WasLoaded() {
			continue
		}
		if err := m.enable(ctx, dh, visiting); err != nil {
			aerr := &ActivationError{Name: h.desc.Name, Err: &ResolutionError{
				Name:       h.desc.Name,
				Reason:     ReasonFailedDependency,
				Dependency: dep,
			}}
			m.failEnable(h, aerr)
			return aerr
		}
	}

	// Registrations made by the enable hook require the enabled state.
	if err := h.transition(StateEnabled); err != nil {
		return err
	}
	if err := protect(h.Extension().OnEnable); err != nil {
		aerr := &ActivationError{Name: h.desc.Name, Err: err}
		m.failEnable(h, aerr)
		return aerr
	}

	h.logger.Info("enabled")
	m.fireLifecycle(ctx, api.ExtensionEnabledType, h)
	return nil
}

func (m *Manager) failEnable(h *Host, err error) {
	h.fail(err)
	h.revoke()
	_ = m.registry.Remove(h.desc.Name)
	h.logger.Error("enable failed", zap.Error(err))
}

// Disable disables one enabled extension.
func (m *Manager) Disable(ctx context.Context, name string) error {
	h, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if h.State() != StateEnabled {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, h.id, h.State())
	}
	m.disable(ctx, h)
	return nil
}

// DisableAll disables every enabled extension in reverse load order.
func (m *Manager) DisableAll(ctx context.Context) {
	loaded := m.Loaded()
	for i := len(loaded) - 1; i >= 0; i-- {
		if loaded[i].State() == StateEnabled {
			m.disable(ctx, loaded[i])
		}
	}
}

// disable runs the disable hook, then revokes the extension's
// registrations whatever the hook did.
func (m *Manager) disable(ctx context.Context, h *Host) {
	if err := protect(h.Extension().OnDisable); err != nil {
		h.logger.Error("disable hook failed", zap.Error(err))
	}
	h.revoke()
	if err := h.transition(StateDisabled); err != nil {
		h.logger.Warn("disable", zap.Error(err))
		return
	}
	h.logger.Info("disabled")
	m.fireLifecycle(ctx, api.ExtensionDisabledType, h)
}

func (m *Manager) fireLifecycle(ctx context.Context, t *event.Type, h *Host) {
	m.bus.Fire(ctx, &api.ExtensionEvent{Type: t, Kind: m.kind, Name: h.desc.Name}, nil)
}

// Close releases every namespace and, when the manager created it, the
// scheduler. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.registry.Close()
	if m.ownsTimer {
		m.scheduler.Stop()
	}
	return err
}
