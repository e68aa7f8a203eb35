package config

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cutlet/internal/config/loader"
)

func memFS(files map[string]string) loader.FileSystem {
	m := fstest.MapFS{}
	for name, data := range files {
		m[name] = &fstest.MapFile{Data: []byte(data)}
	}
	return loader.FSAdapter{FS: m}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithFile("missing.toml"), WithFS(memFS(nil)), WithEnviron([]string{}))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadLayers(t *testing.T) {
	fsys := memFS(map[string]string{"cutlet.toml": `
[paths]
modules = "mods"

[log]
level = "warn"
format = "console"

[permission]
console = ["cutlet.*"]
`})
	env := []string{
		"CUTLET_LOG__LEVEL=debug",
		"CUTLET_WATCH__ENABLED=true",
		"CUTLET_PATHS__DATA=8080",
		"OTHER_LOG__LEVEL=error",
	}

	cfg, err := Load(WithFile("cutlet.toml"), WithFS(fsys), WithEnviron(env))
	require.NoError(t, err)

	assert.Equal(t, "mods", cfg.Paths.Modules)
	assert.Equal(t, "bots", cfg.Paths.Bots)
	assert.Equal(t, "8080", cfg.Paths.Data)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Console.Enabled)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, []string{"cutlet.*"}, cfg.Permission.Console)
}

func TestLoadEnvList(t *testing.T) {
	cfg, err := Load(WithoutEnv(), WithEnviron(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, cfg.Permission.Console)

	cfg, err = Load(WithEnviron([]string{"CUTLET_PERMISSION__CONSOLE=cutlet.stop, echo.*"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"cutlet.stop", "echo.*"}, cfg.Permission.Console)

	cfg, err = Load(WithEnviron([]string{`CUTLET_PERMISSION__CONSOLE=["a","b"]`}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cfg.Permission.Console)
}

func TestLoadProcessEnv(t *testing.T) {
	t.Setenv("CUTLET_LOG__FORMAT", "console")

	cfg, err := Load(WithFS(memFS(nil)))
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadUnknownKey(t *testing.T) {
	fsys := memFS(map[string]string{"cutlet.toml": "[log]\nlevle = \"debug\"\n"})
	_, err := Load(WithFile("cutlet.toml"), WithFS(fsys), WithEnviron([]string{}))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "levle")
}

func TestLoadParseError(t *testing.T) {
	fsys := memFS(map[string]string{"cutlet.toml": "[log\nlevel = 1\n"})
	_, err := Load(WithFile("cutlet.toml"), WithFS(fsys), WithEnviron([]string{}))

	var perr *loader.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "cutlet.toml", perr.Path)
	assert.Positive(t, perr.Line)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Paths.Bots = cfg.Paths.Modules
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Permission.Console = []string{"*", " "}

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	for _, want := range []string{"paths.modules and paths.bots", "log.level", "log.format", "permission.console[1]"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg = Default()
	cfg.Paths.Modules = ""
	assert.ErrorContains(t, cfg.Validate(), "paths.modules is empty")

	assert.NoError(t, Default().Validate())
}
