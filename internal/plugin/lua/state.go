package lua

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// State wraps a gopher-lua LState owned by one extension namespace.
type State struct {
	L *lua.LState

	name string
	lock *Lock

	resolve Resolver
	closed  bool
}

// Lock serializes Lua execution across every State sharing it. A chain
// of calls that crosses States takes it once, so listeners in one State
// may fire events handled by another without any lock ordering.
type Lock struct {
	mu sync.Mutex
}

// NewLock returns an unheld Lock.
func NewLock() *Lock { return &Lock{} }

// hostLock is shared by States created without WithLock.
var hostLock = NewLock()

// StateOption configures a State.
type StateOption func(*State)

// WithName sets the name used in errors, usually the namespace name.
func WithName(name string) StateOption {
	return func(s *State) {
		s.name = name
	}
}

// WithResolver sets how require finds Lua module sources.
func WithResolver(r Resolver) StateOption {
	return func(s *State) {
		s.resolve = r
	}
}

// WithLock sets the lock the state shares with other states. States
// that call into each other must share one.
func WithLock(l *Lock) StateOption {
	return func(s *State) {
		if l != nil {
			s.lock = l
		}
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	s := &State{name: "lua", lock: hostLock}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	installRequire(L, s.resolve)
	s.L = L

	return s, nil
}

// Name returns the state name.
func (s *State) Name() string { return s.name }

type heldKey struct{}

type heldSet struct {
	lock *Lock
	next *heldSet
}

func holds(ctx context.Context, l *Lock) bool {
	for h, _ := ctx.Value(heldKey{}).(*heldSet); h != nil; h = h.next {
		if h.lock == l {
			return true
		}
	}
	return false
}

func withHeld(ctx context.Context, l *Lock) context.Context {
	next, _ := ctx.Value(heldKey{}).(*heldSet)
	return context.WithValue(ctx, heldKey{}, &heldSet{lock: l, next: next})
}

// Do runs fn holding the state's Lock. While fn runs, L.Context()
// returns a context marking the Lock as held.
func (s *State) Do(ctx context.Context, fn func(L *lua.LState) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !holds(ctx, s.lock) {
		s.lock.mu.Lock()
		defer s.lock.mu.Unlock()
		ctx = withHeld(ctx, s.lock)
	}
	if s.closed {
		return ErrStateClosed
	}

	prev := s.L.Context()
	s.L.SetContext(ctx)
	defer func() {
		if prev != nil {
			s.L.SetContext(prev)
		} else {
			s.L.RemoveContext()
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: %v", s.name, ErrPanic, r)
		}
	}()
	return fn(s.L)
}

// pcall calls f with args. It must run inside Do.
func (s *State) pcall(L *lua.LState, f *lua.LFunction, args []lua.LValue) ([]lua.LValue, error) {
	top := L.GetTop()
	L.Push(f)
	for _, a := range args {
		L.Push(a)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	n := L.GetTop() - top
	if n <= 0 {
		return []lua.LValue{}, nil
	}
	ret := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		ret[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	return ret, nil
}

// Call invokes a Lua function value.
// Returns an empty slice (not nil) if the function returns no values.
func (s *State) Call(ctx context.Context, fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	f, ok := fn.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s: %w (got %s)", s.name, ErrNotFunction, fn.Type())
	}
	var ret []lua.LValue
	err := s.Do(ctx, func(L *lua.LState) error {
		var err error
		ret, err = s.pcall(L, f, args)
		return err
	})
	return ret, err
}

// CallMethod calls obj:method(args...). Metatables are honored, so
// methods inherited through __index are found. found is false when the
// method is absent.
func (s *State) CallMethod(ctx context.Context, obj *lua.LTable, method string, args ...lua.LValue) (found bool, ret []lua.LValue, err error) {
	err = s.Do(ctx, func(L *lua.LState) error {
		v := L.GetField(obj, method)
		if v == lua.LNil {
			return nil
		}
		f, ok := v.(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%s: %s: %w (got %s)", s.name, method, ErrNotFunction, v.Type())
		}
		found = true
		ret, err = s.pcall(L, f, append([]lua.LValue{obj}, args...))
		return err
	})
	return found, ret, err
}

// Require loads a module through the state's require function.
func (s *State) Require(ctx context.Context, name string) (lua.LValue, error) {
	var out lua.LValue = lua.LNil
	err := s.Do(ctx, func(L *lua.LState) error {
		ret, err := s.pcall(L, L.GetGlobal("require").(*lua.LFunction), []lua.LValue{lua.LString(name)})
		if err != nil {
			return err
		}
		if len(ret) > 0 {
			out = ret[0]
		}
		return nil
	})
	return out, err
}

// DoString executes a Lua string.
// Execution is synchronous - the call blocks until completion or error.
func (s *State) DoString(ctx context.Context, code string) error {
	return s.Do(ctx, func(L *lua.LState) error {
		fn, err := L.Load(strings.NewReader(code), "="+s.name)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		_, err = s.pcall(L, fn, nil)
		return err
	})
}

// PreloadModule registers a Go module returned by require(name).
func (s *State) PreloadModule(name string, loader lua.LGFunction) error {
	return s.Do(context.Background(), func(L *lua.LState) error {
		L.PreloadModule(name, loader)
		return nil
	})
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.lock.mu.Lock()
	defer s.lock.mu.Unlock()
	return s.closed
}

// Close releases all resources associated with the Lua state.
// After Close is called, all other methods will return ErrStateClosed.
func (s *State) Close() error {
	s.lock.mu.Lock()
	defer s.lock.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
