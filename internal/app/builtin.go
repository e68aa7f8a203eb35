package app

import (
	"context"

	"github.com/dshills/cutlet/internal/command"
	"github.com/dshills/cutlet/internal/plugin"
)

// Permissions of the built-in console commands.
const (
	PermStop    = "cutlet.stop"
	PermPlugins = "cutlet.plugins"
)

func (a *App) registerBuiltinCommands() {
	cmds := []*command.Command{
		{
			Name:        "stop",
			Aliases:     []string{"shutdown"},
			Description: "Stops the host",
			Usage:       "stop",
			Permission:  PermStop,
			ConsoleOnly: true,
			Run:         command.ExecutorFunc(a.stopCommand),
		},
		{
			Name:        "plugins",
			Aliases:     []string{"pl"},
			Description: "Lists modules and bots with their states",
			Usage:       "plugins",
			Permission:  PermPlugins,
			Run:         command.ExecutorFunc(a.pluginsCommand),
		},
	}
	for _, cmd := range cmds {
		if !a.commands.Register(nil, cmd) {
			a.logger.Warn("built-in command not registered")
		}
	}
}

func (a *App) stopCommand(_ context.Context, sender command.Sender, _ string, _ []string) error {
	sender.Send(a.catalog.Translate("console.stopping"))
	a.Stop()
	return nil
}

func (a *App) pluginsCommand(_ context.Context, sender command.Sender, _ string, _ []string) error {
	var infos []plugin.Info
	for _, m := range []*plugin.Manager{a.modules, a.bots} {
		for _, h := range m.Hosts() {
			infos = append(infos, h.Info())
		}
	}

	sender.Send(a.catalog.Translatef("plugins.header", len(infos)))
	for _, info := range infos {
		if info.Err != nil {
			sender.Send(a.catalog.Translatef("plugins.failed", info.Kind, info.Name, info.Version, info.State, info.Err))
			continue
		}
		sender.Send(a.catalog.Translatef("plugins.entry", info.Kind, info.Name, info.Version, info.State))
	}
	return nil
}
