package namespace

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/cutlet/internal/plugin/api"
)

// writeZip creates an archive holding files and returns its path.
func writeZip(t *testing.T, name string, files map[string]string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for entry, body := range files {
		w, err := zw.Create(entry)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func openNS(t *testing.T, r *Registry, name string, imports []string, files map[string]string) *Namespace {
	t.Helper()
	ns, err := r.Open(name, writeZip(t, name+".zip", files), imports)
	require.NoError(t, err)
	return ns
}

func TestExports(t *testing.T) {
	r := NewRegistry(api.KindModule)
	defer r.Close()

	ns := openNS(t, r, "echo", nil, map[string]string{
		"module.yml":     "name: echo",
		"echo/main.lua":  "return {}",
		"echo/init.lua":  "return {}",
		"echo/sub/x.lua": "return {}",
		"README.txt":     "hi",
	})

	assert.Equal(t, []string{"echo", "echo.init", "echo.main", "echo.sub.x"}, ns.Exports())
}

func TestOpenDuplicate(t *testing.T) {
	r := NewRegistry(api.KindModule)
	defer r.Close()

	openNS(t, r, "a", nil, map[string]string{"a.lua": "return {}"})
	_, err := r.Open("a", writeZip(t, "a2.zip", map[string]string{}), nil)
	assert.ErrorIs(t, err, ErrDuplicateNamespace)
}

func TestOpenMissingArchive(t *testing.T) {
	r := NewRegistry(api.KindModule)
	_, err := r.Open("x", filepath.Join(t.TempDir(), "missing.zip"), nil)
	assert.Error(t, err)
	assert.Empty(t, r.Namespaces())
}

func TestResolveOrder(t *testing.T) {
	modules := NewRegistry(api.KindModule)
	defer modules.Close()
	bots := NewRegistry(api.KindBot, WithParent(modules), WithBuiltins(map[string]api.Factory{
		"native.ping": func() api.Extension { return &api.Base{} },
	}))
	defer bots.Close()

	openNS(t, modules, "lib", nil, map[string]string{
		"shared.lua":  "return 'lib'",
		"libonly.lua": "return 'lib'",
	})
	openNS(t, bots, "first", nil, map[string]string{
		"shared.lua": "return 'first'",
		"common.lua": "return 'first'",
	})
	openNS(t, bots, "second", nil, map[string]string{
		"shared.lua": "return 'second'",
		"common.lua": "return 'second'",
		"own.lua":    "return 'second'",
	})
	me := openNS(t, bots, "me", []string{"second"}, map[string]string{
		"own.lua": "return 'me'",
	})

	tests := []struct {
		symbol string
		origin string
	}{
		{"own", "me"},
		{"shared", "second"},
		{"common", "second"},
		{"libonly", "lib"},
		{"native.ping", HostOrigin},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			sym, err := me.Resolve(tt.symbol)
			require.NoError(t, err)
			assert.Equal(t, tt.origin, sym.Origin)
		})
	}

	_, err := me.Resolve("nothing.here")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	var se *SymbolError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "me", se.Namespace)
}

func TestResolveUnimportedUsesOpeningOrder(t *testing.T) {
	r := NewRegistry(api.KindBot)
	defer r.Close()

	openNS(t, r, "zeta", nil, map[string]string{"dup.lua": "return 1"})
	openNS(t, r, "alpha", nil, map[string]string{"dup.lua": "return 2"})
	me := openNS(t, r, "me", nil, map[string]string{})

	sym, err := me.Resolve("dup")
	require.NoError(t, err)
	assert.Equal(t, "zeta", sym.Origin)
}

func TestModulesDoNotSeeBots(t *testing.T) {
	modules := NewRegistry(api.KindModule)
	defer modules.Close()
	bots := NewRegistry(api.KindBot, WithParent(modules))
	defer bots.Close()

	m := openNS(t, modules, "lib", nil, map[string]string{})
	openNS(t, bots, "bot", nil, map[string]string{"botonly.lua": "return 1"})

	_, err := m.Resolve("botonly")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestConstructLua(t *testing.T) {
	r := NewRegistry(api.KindBot)
	defer r.Close()

	ns := openNS(t, r, "echo", nil, map[string]string{
		"echo/main.lua": `
calls = {}
local M = {}
M.__index = M
function M.new()
	return setmetatable({greeting = "hi"}, M)
end
function M:onLoad() table.insert(calls, "load:" .. self.greeting) end
function M:onEnable() table.insert(calls, "enable") end
return M
`,
	})

	ext, err := ns.Construct(context.Background(), "echo.main", nil)
	require.NoError(t, err)
	require.NoError(t, ext.OnLoad())
	require.NoError(t, ext.OnEnable())
	require.NoError(t, ext.OnDisable())

	var calls []string
	err = ns.State().Do(context.Background(), func(L *lua.LState) error {
		L.GetGlobal("calls").(*lua.LTable).ForEach(func(_, v lua.LValue) {
			calls = append(calls, v.String())
		})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"load:hi", "enable"}, calls)
}

func TestConstructLuaWithoutNew(t *testing.T) {
	r := NewRegistry(api.KindModule)
	defer r.Close()

	ns := openNS(t, r, "plain", nil, map[string]string{
		"plain.lua": `return { onEnable = function(self) error("boom") end }`,
	})

	ext, err := ns.Construct(context.Background(), "plain", nil)
	require.NoError(t, err)
	assert.NoError(t, ext.OnLoad())
	err = ext.OnEnable()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestConstructBadEntryPoint(t *testing.T) {
	r := NewRegistry(api.KindModule)
	defer r.Close()

	ns := openNS(t, r, "bad", nil, map[string]string{
		"number.lua": "return 42",
		"ctor.lua":   "return { new = function() return 'x' end }",
		"broken.lua": "return {",
	})

	_, err := ns.Construct(context.Background(), "number", nil)
	assert.ErrorIs(t, err, ErrBadEntryPoint)
	_, err = ns.Construct(context.Background(), "ctor", nil)
	assert.ErrorIs(t, err, ErrBadEntryPoint)
	_, err = ns.Construct(context.Background(), "broken", nil)
	assert.Error(t, err)
	_, err = ns.Construct(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

type nativeExt struct {
	api.Base
}

func TestConstructNative(t *testing.T) {
	r := NewRegistry(api.KindModule, WithBuiltins(map[string]api.Factory{
		"go.native": func() api.Extension { return &nativeExt{} },
		"go.nil":    func() api.Extension { return nil },
	}))
	defer r.Close()

	ns := openNS(t, r, "n", nil, map[string]string{})

	ext, err := ns.Construct(context.Background(), "go.native", nil)
	require.NoError(t, err)
	assert.IsType(t, &nativeExt{}, ext)
	assert.Nil(t, ns.State())

	_, err = ns.Construct(context.Background(), "go.nil", nil)
	assert.ErrorIs(t, err, ErrBadEntryPoint)
}

func TestForeignModulesAreNotShared(t *testing.T) {
	modules := NewRegistry(api.KindModule)
	defer modules.Close()
	bots := NewRegistry(api.KindBot, WithParent(modules))
	defer bots.Close()

	openNS(t, modules, "lib", nil, map[string]string{
		"counter.lua": "local c = {n = 0}; function c.inc() c.n = c.n + 1; return c.n end; return c",
	})
	src := `local c = require("counter"); c.inc(); return { value = c.inc }`
	a := openNS(t, bots, "a", []string{"lib"}, map[string]string{"a.lua": src})
	b := openNS(t, bots, "b", []string{"lib"}, map[string]string{"b.lua": src})

	_, err := a.Construct(context.Background(), "a", nil)
	require.NoError(t, err)
	_, err = b.Construct(context.Background(), "b", nil)
	require.NoError(t, err)

	for _, ns := range []*Namespace{a, b} {
		err := ns.State().DoString(context.Background(), `assert(require("counter").n == 1)`)
		assert.NoError(t, err, ns.Name())
	}
}

func TestResources(t *testing.T) {
	r := NewRegistry(api.KindBot)
	defer r.Close()

	ns := openNS(t, r, "res", nil, map[string]string{
		"config.yml": "from: archive",
		"other.txt":  "archive",
	})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("disk"), 0o644))

	lookup := ns.Resources(dir)
	data, err := lookup.Read("config.yml")
	require.NoError(t, err)
	assert.Equal(t, "from: archive", string(data))

	data, err = lookup.Read("/other.txt")
	require.NoError(t, err)
	assert.Equal(t, "disk", string(data))
}

func TestRemoveAndClose(t *testing.T) {
	r := NewRegistry(api.KindBot)

	openNS(t, r, "a", nil, map[string]string{"a.lua": "return {}"})
	openNS(t, r, "b", nil, map[string]string{"b.lua": "return {}"})

	require.NoError(t, r.Remove("a"))
	_, ok := r.Get("a")
	assert.False(t, ok)
	assert.NoError(t, r.Remove("a"))

	require.Len(t, r.Namespaces(), 1)
	require.NoError(t, r.Close())
	assert.Empty(t, r.Namespaces())
}
