package namespace

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	plua "github.com/dshills/cutlet/internal/plugin/lua"
)

// luaExtension adapts a Lua table to api.Extension. Missing hooks are
// no-ops.
type luaExtension struct {
	state *plua.State
	self  *lua.LTable
}

func (e *luaExtension) hook(name string) error {
	_, _, err := e.state.CallMethod(context.Background(), e.self, name)
	return err
}

func (e *luaExtension) OnLoad() error    { return e.hook("onLoad") }
func (e *luaExtension) OnEnable() error  { return e.hook("onEnable") }
func (e *luaExtension) OnDisable() error { return e.hook("onDisable") }
