package plugin

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/command"
	"github.com/dshills/cutlet/internal/event"
	"github.com/dshills/cutlet/internal/permission"
	"github.com/dshills/cutlet/internal/plugin/api"
	"github.com/dshills/cutlet/internal/timer"
)

// writeArchive writes a zip with files into dir.
func writeArchive(t testing.TB, dir, name string, files map[string]string) string {
	t.Helper()

	p := filepath.Join(dir, name)
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

// services are shared by the managers of one test.
type services struct {
	bus       *event.Bus
	commands  *command.Registry
	scheduler *timer.Scheduler
}

func newServices(t *testing.T) *services {
	t.Helper()
	bus := event.NewBus()
	require.NoError(t, bus.Declare(api.EventTypes()...))
	s := &services{
		bus:       bus,
		commands:  command.NewRegistry(),
		scheduler: timer.New(),
	}
	t.Cleanup(s.scheduler.Stop)
	return s
}

func (s *services) manager(t *testing.T, kind api.Kind, dir string, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{
		WithLogger(zap.NewNop()),
		WithBus(s.bus),
		WithCommands(s.commands),
		WithScheduler(s.scheduler),
	}, opts...)
	m := NewManager(kind, dir, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// hooked is a native extension driven by hooks set in tests.
type hooked struct {
	api.Base
	onLoad    func(rt api.Runtime) error
	onEnable  func(rt api.Runtime) error
	onDisable func(rt api.Runtime) error
}

func (p *hooked) OnLoad() error    { return p.call(p.onLoad) }
func (p *hooked) OnEnable() error  { return p.call(p.onEnable) }
func (p *hooked) OnDisable() error { return p.call(p.onDisable) }

func (p *hooked) call(fn func(api.Runtime) error) error {
	if fn == nil {
		return nil
	}
	return fn(p.Runtime())
}

// hookedBuiltins builds builtins from named hooked templates.
func hookedBuiltins(templates map[string]hooked) map[string]api.Factory {
	out := make(map[string]api.Factory, len(templates))
	for name, tmpl := range templates {
		out[name] = func() api.Extension {
			p := tmpl
			return &p
		}
	}
	return out
}

// testDesc builds a descriptor backed by archive.
func testDesc(name, archive string, depend, soft []string) *Descriptor {
	return &Descriptor{Name: name, Main: "native.hooked", Depend: depend, SoftDepend: soft, Archive: archive}
}

// owner is an always enabled listener owner for observing events.
type owner string

func (o owner) ID() string    { return string(o) }
func (o owner) Enabled() bool { return true }

type testSender struct{ got []string }

func (s *testSender) Name() string                 { return "alice" }
func (s *testSender) Permissions() permission.Set  { return permission.Set{"*"} }
func (s *testSender) IsConsole() bool              { return false }
func (s *testSender) Channel() command.ChannelKind { return command.ChannelPrivate }
func (s *testSender) Send(msg string)              { s.got = append(s.got, msg) }
