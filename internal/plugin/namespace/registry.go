package namespace

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/plugin/api"
)

// Registry holds the open namespaces of one extension kind.
type Registry struct {
	kind     api.Kind
	parent   *Registry
	builtins map[string]api.Factory
	logger   *zap.Logger

	mu     sync.RWMutex
	order  []*Namespace
	byName map[string]*Namespace
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithParent sets the registry consulted after this one. Bots use the
// module registry as parent.
func WithParent(parent *Registry) RegistryOption {
	return func(r *Registry) {
		r.parent = parent
	}
}

// WithBuiltins sets the native factories resolved last.
func WithBuiltins(builtins map[string]api.Factory) RegistryOption {
	return func(r *Registry) {
		for name, f := range builtins {
			r.builtins[name] = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry for kind.
func NewRegistry(kind api.Kind, opts ...RegistryOption) *Registry {
	r := &Registry{
		kind:     kind,
		builtins: make(map[string]api.Factory),
		logger:   zap.NewNop(),
		byName:   make(map[string]*Namespace),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind returns the registry kind.
func (r *Registry) Kind() api.Kind { return r.kind }

// Open opens the archive at path as namespace name and registers it.
// imports lists the namespaces searched right after the local archive.
func (r *Registry) Open(name, path string, imports []string) (*Namespace, error) {
	r.mu.RLock()
	_, exists := r.byName[name]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNamespace, name)
	}

	archive, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}

	ns := &Namespace{
		name:     name,
		registry: r,
		archive:  archive,
		imports:  append([]string(nil), imports...),
		exports:  archive.luaModules(),
		logger:   r.logger.With(zap.String("namespace", name)),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		_ = archive.Close()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNamespace, name)
	}
	r.byName[name] = ns
	r.order = append(r.order, ns)
	return ns, nil
}

// Get returns an open namespace.
func (r *Registry) Get(name string) (*Namespace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.byName[name]
	return ns, ok
}

// Namespaces returns the open namespaces in opening order.
func (r *Registry) Namespaces() []*Namespace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Namespace(nil), r.order...)
}

// Builtins returns the sorted names of the native factories.
func (r *Registry) Builtins() []string {
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove unregisters and closes a namespace.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	ns, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
		for i, o := range r.order {
			if o == ns {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return ns.close()
}

// Close closes every namespace, newest first.
func (r *Registry) Close() error {
	r.mu.Lock()
	order := r.order
	r.order = nil
	r.byName = make(map[string]*Namespace)
	r.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		if err := order[i].close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// exported finds symbol in the namespaces of this registry. named are
// searched first, in order, then the rest in opening order. skip is never
// searched.
func (r *Registry) exported(symbol string, named []string, skip *Namespace) (Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*Namespace]bool, len(r.order))
	if skip != nil {
		seen[skip] = true
	}
	for _, name := range named {
		ns, ok := r.byName[name]
		if !ok || seen[ns] {
			continue
		}
		seen[ns] = true
		if sym, ok := ns.local(symbol); ok {
			return sym, true
		}
	}
	for _, ns := range r.order {
		if seen[ns] {
			continue
		}
		if sym, ok := ns.local(symbol); ok {
			return sym, true
		}
	}
	return Symbol{}, false
}

// builtin finds a native factory here or in a parent.
func (r *Registry) builtin(symbol string) (api.Factory, bool) {
	for reg := r; reg != nil; reg = reg.parent {
		if f, ok := reg.builtins[symbol]; ok {
			return f, true
		}
	}
	return nil, false
}
