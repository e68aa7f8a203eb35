package lua

import (
	"bytes"

	lua "github.com/yuin/gopher-lua"
)

// Resolver returns the source of a Lua module. origin names where the
// source came from and is used as the chunk name.
type Resolver func(name string) (source []byte, origin string, err error)

// openSafeLibraries opens only the libraries extensions need.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	// io, os and debug are intentionally not opened.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// installRequire replaces require. Lookup order: package.loaded, Go
// modules registered with PreloadModule, then resolve.
func installRequire(L *lua.LState, resolve Resolver) {
	pkg, _ := L.GetGlobal("package").(*lua.LTable)
	if pkg == nil {
		pkg = L.NewTable()
		L.SetGlobal("package", pkg)
	}
	L.SetField(pkg, "path", lua.LString(""))
	L.SetField(pkg, "cpath", lua.LString(""))

	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)

		loaded := tableField(L, pkg, "loaded")
		if v := loaded.RawGetString(name); v != lua.LNil {
			L.Push(v)
			return 1
		}

		var chunk *lua.LFunction
		if loader, ok := tableField(L, pkg, "preload").RawGetString(name).(*lua.LFunction); ok {
			chunk = loader
		} else {
			if resolve == nil {
				L.RaiseError("%v: %s", ErrModuleNotFound, name)
			}
			src, origin, err := resolve(name)
			if err != nil {
				L.RaiseError("%v", err)
			}
			fn, err := L.Load(bytes.NewReader(src), origin)
			if err != nil {
				L.RaiseError("compile %s: %v", origin, err)
			}
			chunk = fn
		}

		L.Push(chunk)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		result := L.Get(-1)
		L.Pop(1)
		if result == lua.LNil {
			result = lua.LTrue
		}
		loaded.RawSetString(name, result)
		L.Push(result)
		return 1
	}))
}

func tableField(L *lua.LState, t *lua.LTable, name string) *lua.LTable {
	v, ok := t.RawGetString(name).(*lua.LTable)
	if !ok {
		v = L.NewTable()
		t.RawSetString(name, v)
	}
	return v
}
