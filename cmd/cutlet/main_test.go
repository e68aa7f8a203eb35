package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parsed returns the root command with args parsed but not executed.
func parsed(t *testing.T, args ...string) (*cobra.Command, flags) {
	t.Helper()
	root := newRootCommand(strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, root.ParseFlags(args))

	var f flags
	pf := root.Flags()
	f.configPath, _ = pf.GetString("config")
	f.logLevel, _ = pf.GetString("log-level")
	f.logFormat, _ = pf.GetString("log-format")
	f.modules, _ = pf.GetString("modules")
	f.bots, _ = pf.GetString("bots")
	f.data, _ = pf.GetString("data")
	f.noConsole, _ = pf.GetBool("no-console")
	f.watch, _ = pf.GetBool("watch")
	return root, f
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cutlet.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"warn\"\n[paths]\nbots = \"b\"\n"), 0o644))

	cmd, f := parsed(t, "--config", path, "--modules", "m", "--no-console", "--watch")
	cfg, err := loadConfig(cmd, f)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "m", cfg.Paths.Modules)
	assert.Equal(t, "b", cfg.Paths.Bots)
	assert.False(t, cfg.Console.Enabled)
	assert.True(t, cfg.Watch.Enabled)
}

func TestLoadConfigRejectsInvalidFlags(t *testing.T) {
	cmd, f := parsed(t, "--config", filepath.Join(t.TempDir(), "none.toml"), "--log-level", "loud")
	_, err := loadConfig(cmd, f)
	assert.ErrorContains(t, err, "log.level")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand(strings.NewReader(""), &out)
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Cutlet dev")
}

func TestRunStopsFromConsole(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	root := newRootCommand(strings.NewReader("stop\n"), &out)
	root.SetArgs([]string{
		"run",
		"--config", filepath.Join(dir, "none.toml"),
		"--modules", filepath.Join(dir, "modules"),
		"--bots", filepath.Join(dir, "bots"),
		"--data", dir,
		"--log-level", "error",
	})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Stopping...")
	assert.DirExists(t, filepath.Join(dir, "modules"))
	assert.DirExists(t, filepath.Join(dir, "bots"))
}
