package app

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/command"
	"github.com/dshills/cutlet/internal/config"
	"github.com/dshills/cutlet/internal/event"
	"github.com/dshills/cutlet/internal/permission"
	"github.com/dshills/cutlet/internal/plugin"
	"github.com/dshills/cutlet/internal/plugin/api"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeArchive(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	f, err := os.Create(filepath.Join(dir, name))
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
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type native struct {
	api.Base
	name string
	rec  *recorder
}

func (n *native) OnEnable() error {
	n.rec.add("enable " + n.name)
	return nil
}

func (n *native) OnDisable() error {
	n.rec.add("disable " + n.name)
	return nil
}

func natives(rec *recorder, names ...string) map[string]api.Factory {
	out := make(map[string]api.Factory, len(names))
	for _, name := range names {
		out["native."+name] = func() api.Extension {
			return &native{name: name, rec: rec}
		}
	}
	return out
}

// testConfig lays out modules, bots and data under a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		Modules: filepath.Join(root, "modules"),
		Bots:    filepath.Join(root, "bots"),
		Data:    filepath.Join(root, "data"),
	}
	cfg.Console.Enabled = false
	return cfg
}

func startApp(t *testing.T, cfg *config.Config, opts ...Option) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithLogger(zap.NewNop()), WithConsole(strings.NewReader(""), &out)}, opts...)
	a := New(cfg, opts...)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, &out
}

func TestStartLoadsModulesThenBots(t *testing.T) {
	cfg := testConfig(t)
	writeArchive(t, cfg.Paths.Modules, "db.zip", map[string]string{
		"module.yml": "name: db\nversion: '1.0'\nmain: native.db\n",
	})
	writeArchive(t, cfg.Paths.Modules, "cache.zip", map[string]string{
		"module.yml": "name: cache\nmain: native.cache\ndepend: [db]\n",
	})
	writeArchive(t, cfg.Paths.Bots, "echo.zip", map[string]string{
		"bot.yml": "name: echo\nmain: native.echo\nmodules: [db]\n",
	})
	writeArchive(t, cfg.Paths.Bots, "lonely.zip", map[string]string{
		"bot.yml": "name: lonely\nmain: native.echo\nmodules: [ghost]\n",
	})

	rec := &recorder{}
	a, _ := startApp(t, cfg, WithBuiltins(natives(rec, "db", "cache", "echo")))

	assert.Equal(t, []string{"enable db", "enable cache", "enable echo"}, rec.list())

	lonely, ok := a.Bots().Get("lonely")
	require.True(t, ok)
	assert.Equal(t, plugin.StateFailed, lonely.State())
	var rerr *plugin.ResolutionError
	require.ErrorAs(t, lonely.Err(), &rerr)
	assert.Equal(t, plugin.ReasonMissingModule, rerr.Reason)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, []string{
		"enable db", "enable cache", "enable echo",
		"disable echo", "disable cache", "disable db",
	}, rec.list())

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Len(t, rec.list(), 6)
}

func TestStartTwice(t *testing.T) {
	a, _ := startApp(t, testConfig(t))
	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyStarted)
}

func TestRunBeforeStart(t *testing.T) {
	a := New(testConfig(t))
	assert.ErrorIs(t, a.Run(context.Background()), ErrNotStarted)
	assert.NoError(t, a.Shutdown(context.Background()))
}

func TestStartDirectoryFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.Paths.Modules = filepath.Join(blocker, "modules")

	a := New(cfg, WithLogger(zap.NewNop()))
	err := a.Start(context.Background())

	var derr *DirError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, cfg.Paths.Modules, derr.Path)
	assert.NoError(t, a.Shutdown(context.Background()))
}

func TestConsoleCommands(t *testing.T) {
	cfg := testConfig(t)
	writeArchive(t, cfg.Paths.Modules, "db.zip", map[string]string{
		"module.yml": "name: db\nversion: '1.0'\nmain: native.db\n",
	})
	a, out := startApp(t, cfg, WithBuiltins(natives(&recorder{}, "db")))
	ctx := context.Background()

	assert.Equal(t, command.OutcomeExecuted, a.Execute(ctx, "PL"))
	assert.Contains(t, out.String(), "1 extensions:")
	assert.Contains(t, out.String(), "module db v1.0: enabled")

	out.Reset()
	assert.Equal(t, command.OutcomeNotFound, a.Execute(ctx, "frobnicate now"))
	assert.Contains(t, out.String(), "Unknown command.")

	assert.Equal(t, command.OutcomeNotFound, a.Execute(ctx, "   "))

	out.Reset()
	assert.Equal(t, command.OutcomeExecuted, a.Execute(ctx, "shutdown"))
	assert.Contains(t, out.String(), "Stopping...")
	select {
	case <-a.stopCh:
	default:
		t.Fatal("stop did not signal")
	}
}

type remoteSender struct{ got []string }

func (s *remoteSender) Name() string                 { return "alice" }
func (s *remoteSender) Permissions() permission.Set  { return permission.Set{"*"} }
func (s *remoteSender) IsConsole() bool              { return false }
func (s *remoteSender) Channel() command.ChannelKind { return command.ChannelPrivate }
func (s *remoteSender) Send(msg string)              { s.got = append(s.got, msg) }

func TestStopIsConsoleOnly(t *testing.T) {
	a, _ := startApp(t, testConfig(t))
	s := &remoteSender{}

	assert.Equal(t, command.OutcomeConsoleOnly, a.Commands().DispatchAny(context.Background(), s, "stop", nil))
	assert.Equal(t, []string{"This command can only be used from the console."}, s.got)
}

func TestConsoleGrants(t *testing.T) {
	cfg := testConfig(t)
	cfg.Permission.Console = []string{"cutlet.*", "-cutlet.stop"}
	a, out := startApp(t, cfg)

	assert.Equal(t, command.OutcomeNoPermission, a.Execute(context.Background(), "stop"))
	assert.Contains(t, out.String(), "You do not have permission")
	assert.Equal(t, command.OutcomeExecuted, a.Execute(context.Background(), "plugins"))
}

type listener string

func (l listener) ID() string    { return string(l) }
func (l listener) Enabled() bool { return true }

func TestCommandEventCancels(t *testing.T) {
	a, out := startApp(t, testConfig(t))

	var seen []string
	_, err := a.Bus().Register(listener("test"), event.Listener{
		Type: api.CommandType,
		Handler: event.HandlerFunc(func(_ context.Context, e event.Event) error {
			ce := e.(*api.CommandEvent)
			seen = append(seen, ce.Sender+":"+ce.Alias+":"+strings.Join(ce.Args, ","))
			ce.SetCancelled(true)
			return nil
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, command.OutcomeNotFound, a.Execute(context.Background(), "stop now please"))
	assert.Equal(t, []string{"CONSOLE:stop:now,please"}, seen)
	assert.Contains(t, out.String(), "Command cancelled.")
	select {
	case <-a.stopCh:
		t.Fatal("cancelled stop ran")
	default:
	}
}

func TestMessagesOverride(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.Data, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Data, MessagesFile), []byte("unknown_command = \"huh?\"\n"), 0o644))

	a, out := startApp(t, cfg)
	a.Execute(context.Background(), "nope")
	assert.Equal(t, "huh?\n", out.String())
	assert.Equal(t, "No translation for key console.stopping", a.Catalog().Translate("console.stopping"))
}

func TestMessagesMalformedOverrideFallsBack(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.Data, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Data, MessagesFile), []byte("= broken"), 0o644))

	a, _ := startApp(t, cfg)
	assert.Equal(t, "Stopping...", a.Catalog().Translate("console.stopping"))
}

func TestRunConsoleUntilStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Console.Enabled = true

	rec := &recorder{}
	writeArchive(t, cfg.Paths.Modules, "db.zip", map[string]string{
		"module.yml": "name: db\nmain: native.db\n",
	})

	var out bytes.Buffer
	a := New(cfg,
		WithLogger(zap.NewNop()),
		WithConsole(strings.NewReader("plugins\n\nstop\n"), &out),
		WithBuiltins(natives(rec, "db")),
	)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Run(context.Background()))

	assert.Contains(t, out.String(), "1 extensions:")
	assert.Contains(t, out.String(), "Stopping...")
	assert.Equal(t, []string{"enable db", "disable db"}, rec.list())
}

func TestRunClosesConsoleInput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Console.Enabled = true

	pr, pw := io.Pipe()
	var out bytes.Buffer
	a := New(cfg, WithLogger(zap.NewNop()), WithConsole(pr, &out))
	require.NoError(t, a.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	_, err := pw.Write([]byte("plugins\n"))
	require.NoError(t, err)
	a.Stop()
	require.NoError(t, <-done)

	_, err = pw.Write([]byte("plugins\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestRunUntilContextDone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.Enabled = true
	a, _ := startApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(config.Log{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l, err = NewLogger(config.Log{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.ErrorLevel))

	_, err = NewLogger(config.Log{Level: "loud", Format: "json"})
	assert.Error(t, err)
	_, err = NewLogger(config.Log{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
