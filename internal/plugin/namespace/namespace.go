package namespace

import (
	"context"
	"fmt"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/plugin/api"
	plua "github.com/dshills/cutlet/internal/plugin/lua"
	"github.com/dshills/cutlet/internal/resource"
)

// HostOrigin is the origin of symbols provided by native factories.
const HostOrigin = "host"

// Symbol is a resolved name.
type Symbol struct {
	// Name is the symbol that was looked up.
	Name string

	// Origin is the providing namespace, or HostOrigin for builtins.
	Origin string

	// Path is the archive entry of a Lua symbol.
	Path string

	// Source holds the Lua source. Nil for builtins.
	Source []byte

	// Factory is set for builtins.
	Factory api.Factory
}

// Native reports whether the symbol is a Go factory.
func (s Symbol) Native() bool { return s.Factory != nil }

// Namespace is the symbol scope of one archive.
type Namespace struct {
	name     string
	registry *Registry
	archive  *Archive
	imports  []string
	exports  map[string]string
	logger   *zap.Logger

	mu     sync.Mutex
	state  *plua.State
	closed bool
}

// Name returns the namespace name.
func (ns *Namespace) Name() string { return ns.name }

// Archive returns the backing archive.
func (ns *Namespace) Archive() *Archive { return ns.archive }

// Imports returns the declared imports.
func (ns *Namespace) Imports() []string {
	return append([]string(nil), ns.imports...)
}

// Exports returns the sorted exported module names.
func (ns *Namespace) Exports() []string {
	names := make([]string, 0, len(ns.exports))
	for name := range ns.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// local resolves symbol in this archive only.
func (ns *Namespace) local(symbol string) (Symbol, bool) {
	entry, ok := ns.exports[symbol]
	if !ok {
		return Symbol{}, false
	}
	src, err := ns.archive.ReadFile(entry)
	if err != nil {
		ns.logger.Warn("unreadable archive entry", zap.String("entry", entry), zap.Error(err))
		return Symbol{}, false
	}
	return Symbol{Name: symbol, Origin: ns.name, Path: entry, Source: src}, true
}

// Resolve looks symbol up in the documented order.
func (ns *Namespace) Resolve(symbol string) (Symbol, error) {
	if sym, ok := ns.local(symbol); ok {
		return sym, nil
	}
	if sym, ok := ns.registry.exported(symbol, ns.imports, ns); ok {
		return sym, nil
	}
	if parent := ns.registry.parent; parent != nil {
		if sym, ok := parent.exported(symbol, nil, nil); ok {
			return sym, nil
		}
	}
	if f, ok := ns.registry.builtin(symbol); ok {
		return Symbol{Name: symbol, Origin: HostOrigin, Factory: f}, nil
	}
	return Symbol{}, &SymbolError{Symbol: symbol, Namespace: ns.name}
}

// Resources returns the lookup for this archive with dir as the override.
func (ns *Namespace) Resources(dir string) *resource.Lookup {
	return resource.New(dir, ns.archive.FS())
}

// Construct resolves entry and creates the extension from it. Native
// symbols are built with their factory. Lua symbols are required into the
// namespace's Lua state, which exposes the cutlet module bound to rt.
func (ns *Namespace) Construct(ctx context.Context, entry string, rt api.Runtime) (api.Extension, error) {
	sym, err := ns.Resolve(entry)
	if err != nil {
		return nil, err
	}

	if sym.Native() {
		ext := sym.Factory()
		if ext == nil {
			return nil, fmt.Errorf("%w: factory %s returned nil", ErrBadEntryPoint, entry)
		}
		if b, ok := ext.(api.Binder); ok {
			b.Bind(rt)
		}
		return ext, nil
	}

	state, err := ns.luaState(rt)
	if err != nil {
		return nil, err
	}

	v, err := state.Require(ctx, entry)
	if err != nil {
		return nil, err
	}
	class, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %s, want table", ErrBadEntryPoint, entry, v.Type())
	}

	self := class
	if ctor := class.RawGetString("new"); ctor != lua.LNil {
		ret, err := state.Call(ctx, ctor)
		if err != nil {
			return nil, fmt.Errorf("construct %s: %w", entry, err)
		}
		if len(ret) == 0 {
			return nil, fmt.Errorf("%w: %s.new returned nothing", ErrBadEntryPoint, entry)
		}
		if self, ok = ret[0].(*lua.LTable); !ok {
			return nil, fmt.Errorf("%w: %s.new returned %s, want table", ErrBadEntryPoint, entry, ret[0].Type())
		}
	}

	return &luaExtension{state: state, self: self}, nil
}

// State returns the namespace's Lua state, nil before the first Lua
// extension was constructed.
func (ns *Namespace) State() *plua.State {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.state
}

func (ns *Namespace) luaState(rt api.Runtime) (*plua.State, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.closed {
		return nil, ErrClosed
	}
	if ns.state != nil {
		return ns.state, nil
	}

	state, err := plua.NewState(plua.WithName(ns.name), plua.WithResolver(ns.luaSource))
	if err != nil {
		return nil, fmt.Errorf("create lua state for %s: %w", ns.name, err)
	}
	if err := state.PreloadModule(api.LuaModuleName, api.LuaModule(state, rt)); err != nil {
		_ = state.Close()
		return nil, err
	}
	ns.state = state
	return state, nil
}

func (ns *Namespace) luaSource(name string) ([]byte, string, error) {
	sym, err := ns.Resolve(name)
	if err != nil {
		return nil, "", err
	}
	if sym.Native() {
		return nil, "", fmt.Errorf("%s is a native extension, not a Lua module", name)
	}
	if sym.Origin != ns.name {
		ns.logger.Debug("module resolved from another namespace",
			zap.String("module", name), zap.String("origin", sym.Origin))
	}
	return sym.Source, sym.Origin + "/" + sym.Path, nil
}

func (ns *Namespace) close() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed {
		return nil
	}
	ns.closed = true
	if ns.state != nil {
		_ = ns.state.Close()
	}
	return ns.archive.Close()
}
