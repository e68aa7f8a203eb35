// Package main is the entry point for the Cutlet extension host.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/app"
	"github.com/dshills/cutlet/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdin, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// flags holds command-line overrides. Only flags set explicitly are
// applied over the loaded configuration.
type flags struct {
	configPath string
	logLevel   string
	logFormat  string
	modules    string
	bots       string
	data       string
	noConsole  bool
	watch      bool
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:   "cutlet",
		Short: "Cutlet - extension host for modules and bots",
		Long: `Cutlet loads module and bot archives, resolves their dependencies,
enables them in order and serves a command console until stopped.

Configuration is read from cutlet.toml, then CUTLET_<SECTION>__<KEY>
environment variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, f, in, out)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "cutlet.toml", "Path to configuration file")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format (json, console)")
	pf.StringVar(&f.modules, "modules", "", "Module archive directory")
	pf.StringVar(&f.bots, "bots", "", "Bot archive directory")
	pf.StringVar(&f.data, "data", "", "Directory overriding bundled host resources")
	pf.BoolVar(&f.noConsole, "no-console", false, "Do not read commands from stdin")
	pf.BoolVar(&f.watch, "watch", false, "Report archive changes that need a restart")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the host (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, f, in, out)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Cutlet %s\nCommit: %s\nBuilt: %s\n", version, commit, date)
		},
	})
	return root
}

// loadConfig loads the layered configuration and applies flags set on cmd.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(config.WithFile(f.configPath))
	if err != nil {
		return nil, err
	}

	set := cmd.Flags().Changed
	if set("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if set("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if set("modules") {
		cfg.Paths.Modules = f.modules
	}
	if set("bots") {
		cfg.Paths.Bots = f.bots
	}
	if set("data") {
		cfg.Paths.Data = f.data
	}
	if set("no-console") {
		cfg.Console.Enabled = !f.noConsole
	}
	if set("watch") {
		cfg.Watch.Enabled = f.watch
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(cmd *cobra.Command, f flags, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a := app.New(cfg, app.WithLogger(logger), app.WithConsole(in, out))

	ctx := cmd.Context()
	if err := a.Start(ctx); err != nil {
		logger.Error("startup failed", zap.Error(err))
		return errors.Join(err, a.Shutdown(context.Background()))
	}
	return a.Run(ctx)
}
