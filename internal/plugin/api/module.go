package api

import (
	"context"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/command"
	"github.com/dshills/cutlet/internal/event"
	plua "github.com/dshills/cutlet/internal/plugin/lua"
	"github.com/dshills/cutlet/internal/timer"
)

// LuaModuleName is the name extensions pass to require.
const LuaModuleName = "cutlet"

// luaModule implements require("cutlet") for one extension.
type luaModule struct {
	state *plua.State
	rt    Runtime

	mu    sync.Mutex
	tasks map[string]*timer.Task
}

// LuaModule returns the loader for the cutlet module bound to rt. Every
// callback it creates runs inside state.
func LuaModule(state *plua.State, rt Runtime) lua.LGFunction {
	m := &luaModule{state: state, rt: rt, tasks: make(map[string]*timer.Task)}
	return func(L *lua.LState) int {
		mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"name":                m.name,
			"kind":                m.kind,
			"dir":                 m.dir,
			"log":                 m.log,
			"resource":            m.resource,
			"config":              m.config,
			"save_default_config": m.saveDefaultConfig,
			"translate":           m.translate,
			"command":             m.command,
			"listen":              m.listen,
			"unlisten":            m.unlisten,
			"declare":             m.declare,
			"fire":                m.fire,
			"after":               m.after,
			"every":               m.every,
			"cancel":              m.cancel,
		})
		L.Push(mod)
		return 1
	}
}

func ctxOf(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (m *luaModule) name(L *lua.LState) int {
	L.Push(lua.LString(m.rt.Name()))
	return 1
}

func (m *luaModule) kind(L *lua.LState) int {
	L.Push(lua.LString(m.rt.Kind()))
	return 1
}

func (m *luaModule) dir(L *lua.LState) int {
	L.Push(lua.LString(m.rt.Dir()))
	return 1
}

func (m *luaModule) log(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)
	logger := m.rt.Logger()
	switch level {
	case "debug":
		logger.Debug(msg)
	case "warn":
		logger.Warn(msg)
	case "error":
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
	return 0
}

func (m *luaModule) resource(L *lua.LState) int {
	data, err := m.rt.Resource(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(data))
	return 1
}

func (m *luaModule) config(L *lua.LState) int {
	L.Push(plua.NewBridge(L).ToLuaValue(m.rt.Config()))
	return 1
}

func (m *luaModule) saveDefaultConfig(L *lua.LState) int {
	if err := m.rt.SaveDefaultConfig(); err != nil {
		L.RaiseError("save default config: %v", err)
	}
	return 0
}

func (m *luaModule) translate(L *lua.LState) int {
	L.Push(lua.LString(m.rt.Translate(L.CheckString(1))))
	return 1
}

// command registers cutlet.command{name=..., run=function(sender, alias, args) end}.
func (m *luaModule) command(L *lua.LState) int {
	spec := L.CheckTable(1)
	b := plua.NewBridge(L)

	name, _ := b.GetTableString(spec, "name")
	run, ok := b.GetTableFunc(spec, "run")
	if name == "" || !ok {
		L.ArgError(1, "command needs a name and a run function")
	}

	var channels []command.ChannelKind
	for _, c := range b.GetTableStrings(spec, "channels") {
		kind, err := command.ParseChannelKind(c)
		if err != nil {
			L.ArgError(1, err.Error())
		}
		channels = append(channels, kind)
	}

	cmd := &command.Command{
		Name:        name,
		Aliases:     b.GetTableStrings(spec, "aliases"),
		Permission:  stringField(b, spec, "permission"),
		Description: stringField(b, spec, "description"),
		Usage:       stringField(b, spec, "usage"),
		ConsoleOnly: b.GetTableBool(spec, "console"),
		Channels:    channels,
		Run: command.ExecutorFunc(func(ctx context.Context, s command.Sender, alias string, args []string) error {
			return m.state.Do(ctx, func(L *lua.LState) error {
				b := plua.NewBridge(L)
				_, err := m.state.Call(L.Context(), run, senderTable(L, s), lua.LString(alias), b.ToLuaValue(args))
				return err
			})
		}),
	}
	L.Push(lua.LBool(m.rt.RegisterCommand(cmd)))
	return 1
}

func stringField(b *plua.Bridge, t *lua.LTable, key string) string {
	s, _ := b.GetTableString(t, key)
	return s
}

func senderTable(L *lua.LState, s command.Sender) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("name", lua.LString(s.Name()))
	t.RawSetString("console", lua.LBool(s.IsConsole()))
	t.RawSetString("channel", lua.LString(s.Channel().String()))
	t.RawSetString("send", L.NewFunction(func(L *lua.LState) int {
		s.Send(L.CheckString(1))
		return 0
	}))
	return t
}

// listen registers cutlet.listen(type, fn, {priority=, ignore_cancelled=, ignore_filter=}).
func (m *luaModule) listen(L *lua.LState) int {
	typ, err := m.rt.EventType(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
	}
	fn := L.CheckFunction(2)
	opts := L.OptTable(3, L.NewTable())
	b := plua.NewBridge(L)

	prio := event.PriorityNormal
	if p, ok := b.GetTableString(opts, "priority"); ok {
		if prio, err = event.ParsePriority(p); err != nil {
			L.ArgError(3, err.Error())
		}
	}

	regs, err := m.rt.Listen(event.Listener{
		Type:            typ,
		Priority:        prio,
		IgnoreCancelled: b.GetTableBool(opts, "ignore_cancelled"),
		IgnoreFilter:    b.GetTableBool(opts, "ignore_filter"),
		Handler: event.HandlerFunc(func(ctx context.Context, e event.Event) error {
			return m.state.Do(ctx, func(L *lua.LState) error {
				_, err := m.state.Call(L.Context(), fn, eventTable(L, e))
				return err
			})
		}),
	})
	if err != nil || len(regs) == 0 {
		L.RaiseError("listen %s: %v", typ.Name(), err)
	}
	L.Push(lua.LString(regs[0].ID))
	return 1
}

// eventTable exposes an event to Lua. data is a copy of the payload.
func eventTable(L *lua.LState, e event.Event) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("type", lua.LString(e.EventType().Name()))
	if de, ok := e.(DataEvent); ok {
		t.RawSetString("data", plua.NewBridge(L).ToLuaValue(de.EventData()))
	} else {
		t.RawSetString("data", L.NewTable())
	}

	c, cancellable := e.(event.Cancellable)
	t.RawSetString("cancelled", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(cancellable && c.Cancelled()))
		return 1
	}))
	t.RawSetString("cancel", L.NewFunction(func(L *lua.LState) int {
		if !cancellable {
			L.RaiseError("event %s cannot be cancelled", e.EventType().Name())
		}
		c.SetCancelled(L.OptBool(1, true))
		return 0
	}))
	return t
}

func (m *luaModule) unlisten(L *lua.LState) int {
	L.Push(lua.LBool(m.rt.Unlisten(L.CheckString(1))))
	return 1
}

func (m *luaModule) declare(L *lua.LState) int {
	typ, err := m.rt.DeclareEvent(L.CheckString(1))
	if err != nil {
		L.RaiseError("declare: %v", err)
	}
	L.Push(lua.LString(typ.Name()))
	return 1
}

// fire dispatches cutlet.fire(type, data) and returns the cancelled flag.
func (m *luaModule) fire(L *lua.LState) int {
	typ, err := m.rt.EventType(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
	}
	data := make(map[string]any)
	if t, ok := L.Get(2).(*lua.LTable); ok {
		if mv, ok := plua.NewBridge(L).ToGoValue(t).(map[string]any); ok {
			data = mv
		}
	}
	res := m.rt.Fire(ctxOf(L), event.NewGeneric(typ, data), nil)
	L.Push(lua.LBool(res.Cancelled))
	return 1
}

func (m *luaModule) after(L *lua.LState) int {
	return m.schedule(L, func(d time.Duration, fn timer.Func) (*timer.Task, error) {
		return m.rt.After(d, fn)
	})
}

func (m *luaModule) every(L *lua.LState) int {
	return m.schedule(L, func(d time.Duration, fn timer.Func) (*timer.Task, error) {
		return m.rt.Every(d, fn)
	})
}

func (m *luaModule) schedule(L *lua.LState, add func(time.Duration, timer.Func) (*timer.Task, error)) int {
	seconds := float64(L.CheckNumber(1))
	fn := L.CheckFunction(2)

	task, err := add(time.Duration(seconds*float64(time.Second)), func(ctx context.Context) {
		if _, err := m.state.Call(ctx, fn); err != nil {
			m.rt.Logger().Error("scheduled task failed", zap.Error(err))
		}
	})
	if err != nil {
		L.RaiseError("schedule: %v", err)
	}

	m.mu.Lock()
	for id, t := range m.tasks {
		if st := t.State(); st == timer.Finished || st == timer.Cancelled {
			delete(m.tasks, id)
		}
	}
	m.tasks[task.ID()] = task
	m.mu.Unlock()

	L.Push(lua.LString(task.ID()))
	return 1
}

func (m *luaModule) cancel(L *lua.LState) int {
	id := L.CheckString(1)
	m.mu.Lock()
	task, ok := m.tasks[id]
	delete(m.tasks, id)
	m.mu.Unlock()
	L.Push(lua.LBool(ok && task.Cancel()))
	return 1
}
