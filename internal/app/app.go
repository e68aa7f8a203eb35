// Package app wires the Cutlet host together: configuration, logging,
// translations, the console, the module and bot managers, the archive
// watcher and shutdown.
package app

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/cutlet/internal/command"
	"github.com/dshills/cutlet/internal/config"
	"github.com/dshills/cutlet/internal/event"
	"github.com/dshills/cutlet/internal/i18n"
	"github.com/dshills/cutlet/internal/permission"
	"github.com/dshills/cutlet/internal/plugin"
	"github.com/dshills/cutlet/internal/plugin/api"
	"github.com/dshills/cutlet/internal/resource"
	"github.com/dshills/cutlet/internal/timer"
)

// MessagesFile is the translation catalog, bundled and overridable from
// the data directory.
const MessagesFile = "messages.toml"

//go:embed messages.toml
var bundle embed.FS

// App is the running host.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	in         io.Reader
	out        io.Writer
	builtins   map[string]api.Factory
	strategy   permission.Strategy
	watchDelay time.Duration

	catalog   *i18n.Catalog
	engine    *permission.Engine
	bus       *event.Bus
	commands  *command.Registry
	scheduler *timer.Scheduler
	modules   *plugin.Manager
	bots      *plugin.Manager
	console   *consoleSender

	started      atomic.Bool
	stopCh       chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the root logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithConsole sets the console streams. The defaults are stdin and stdout.
// When Run ends, an in that implements io.Closer is closed. Stdin is never
// closed, so its reader goroutine stays blocked until the process exits.
func WithConsole(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

// WithBuiltins registers native entry points shared by modules and bots.
func WithBuiltins(builtins map[string]api.Factory) Option {
	return func(a *App) {
		a.builtins = builtins
	}
}

// WithStrategy replaces the permission check.
func WithStrategy(s permission.Strategy) Option {
	return func(a *App) {
		a.strategy = s
	}
}

// WithWatchDelay sets how long the archive watcher coalesces changes.
func WithWatchDelay(d time.Duration) Option {
	return func(a *App) {
		a.watchDelay = d
	}
}

// New creates an App for cfg. Nothing is touched until Start.
func New(cfg *config.Config, opts ...Option) *App {
	a := &App{
		cfg:        cfg,
		logger:     zap.NewNop(),
		in:         os.Stdin,
		out:        os.Stdout,
		watchDelay: 500 * time.Millisecond,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Catalog returns the translation catalog.
func (a *App) Catalog() *i18n.Catalog { return a.catalog }

// Bus returns the shared event bus.
func (a *App) Bus() *event.Bus { return a.bus }

// Commands returns the shared command registry.
func (a *App) Commands() *command.Registry { return a.commands }

// Modules returns the module manager.
func (a *App) Modules() *plugin.Manager { return a.modules }

// Bots returns the bot manager.
func (a *App) Bots() *plugin.Manager { return a.bots }

// Start builds the services, then loads and enables modules followed by
// bots. Only a directory that cannot be created is fatal; extension
// failures are logged and contained.
func (a *App) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	for _, dir := range []string{a.cfg.Paths.Modules, a.cfg.Paths.Bots} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			a.started.Store(false)
			return &DirError{Path: dir, Err: err}
		}
	}

	a.catalog = a.loadCatalog()

	var engineOpts []permission.Option
	engineOpts = append(engineOpts, permission.WithLogger(a.logger.Named("permission")))
	if a.strategy != nil {
		engineOpts = append(engineOpts, permission.WithStrategy(a.strategy))
	}
	a.engine = permission.New(engineOpts...)

	a.commands = command.NewRegistry(
		command.WithEngine(a.engine),
		command.WithTranslator(a.catalog),
		command.WithLogger(a.logger.Named("command")),
	)
	a.bus = event.NewBus(event.WithLogger(a.logger.Named("event")))
	if err := a.bus.Declare(api.EventTypes()...); err != nil {
		return fmt.Errorf("declare host events: %w", err)
	}
	a.scheduler = timer.New(timer.WithLogger(a.logger.Named("timer")))

	shared := []plugin.Option{
		plugin.WithLogger(a.logger),
		plugin.WithBus(a.bus),
		plugin.WithCommands(a.commands),
		plugin.WithScheduler(a.scheduler),
		plugin.WithTranslator(a.catalog),
		plugin.WithBuiltins(a.builtins),
	}
	a.modules = plugin.NewManager(api.KindModule, a.cfg.Paths.Modules, shared...)
	a.bots = plugin.NewManager(api.KindBot, a.cfg.Paths.Bots, append(shared, plugin.WithParent(a.modules))...)

	a.console = newConsoleSender(a.cfg.Permission.Console, a.out)
	a.registerBuiltinCommands()

	a.load(ctx, a.modules)
	a.load(ctx, a.bots)
	return nil
}

// load runs one discovery, resolution and enable pass.
func (a *App) load(ctx context.Context, m *plugin.Manager) {
	logger := a.logger.Named(string(m.Kind()))

	descs, err := m.Discover(ctx)
	if err != nil {
		logger.Warn("discovery reported problems", zap.Error(err))
	}
	results := m.ResolveAndLoad(ctx, descs)
	if err := m.EnableAll(ctx); err != nil {
		logger.Warn("some extensions failed to enable", zap.Error(err))
	}

	enabled := 0
	for _, h := range m.Loaded() {
		if h.State() == plugin.StateEnabled {
			enabled++
		}
	}
	logger.Info("extensions ready",
		zap.Int("discovered", len(descs)),
		zap.Int("loaded", len(m.Loaded())),
		zap.Int("enabled", enabled),
		zap.Int("failed", len(results)-len(m.Loaded())),
	)
}

// loadCatalog reads messages.toml from the data directory, falling back
// to the bundled copy when the override does not parse.
func (a *App) loadCatalog() *i18n.Catalog {
	lookup := resource.New(a.cfg.Paths.Data, bundle)

	data, err := lookup.Read(MessagesFile)
	if err == nil {
		catalog, perr := i18n.Load(bytes.NewReader(data))
		if perr == nil {
			return catalog
		}
		a.logger.Warn("ignoring malformed messages override", zap.Error(perr))
	} else {
		a.logger.Warn("read messages", zap.Error(err))
	}

	data, err = lookup.ReadBundled(MessagesFile)
	if err != nil {
		a.logger.Error("bundled messages missing", zap.Error(err))
		return i18n.New(nil)
	}
	catalog, err := i18n.Load(bytes.NewReader(data))
	if err != nil {
		a.logger.Error("bundled messages malformed", zap.Error(err))
		return i18n.New(nil)
	}
	return catalog
}

// Run serves the console and the archive watcher until Stop is called or
// ctx is done, then shuts the host down.
func (a *App) Run(ctx context.Context) error {
	if !a.started.Load() {
		return ErrNotStarted
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		select {
		case <-runCtx.Done():
		case <-a.stopCh:
		}
		cancel()
		return nil
	})

	if a.cfg.Console.Enabled {
		g.Go(func() error {
			return a.readConsole(runCtx, a.in)
		})
	}

	if a.cfg.Watch.Enabled {
		w, err := newArchiveWatcher(a.logger.Named("watch"), a.watchDelay, map[api.Kind]string{
			api.KindModule: a.cfg.Paths.Modules,
			api.KindBot:    a.cfg.Paths.Bots,
		})
		if err != nil {
			a.logger.Warn("archive watcher unavailable", zap.Error(err))
		} else {
			g.Go(func() error {
				return w.Run(runCtx)
			})
		}
	}

	a.logger.Info("running")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, a.Shutdown(context.Background()))
}

// Stop asks Run to return. It is safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
}

// Shutdown disables bots, then modules, each in reverse load order, closes
// every archive and stops the scheduler. It is idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	a.Stop()
	a.shutdownOnce.Do(func() {
		if !a.started.Load() || a.modules == nil {
			return
		}
		a.logger.Info("shutting down")

		a.bots.DisableAll(ctx)
		a.modules.DisableAll(ctx)

		a.shutdownErr = errors.Join(a.bots.Close(), a.modules.Close())
		a.scheduler.Stop()
		if a.shutdownErr != nil {
			a.logger.Warn("shutdown", zap.Error(a.shutdownErr))
		}
		a.logger.Info("stopped")
	})
	return a.shutdownErr
}
