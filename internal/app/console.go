package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/cutlet/internal/command"
	"github.com/dshills/cutlet/internal/permission"
	"github.com/dshills/cutlet/internal/plugin/api"
)

// ConsoleName is the console sender's name.
const ConsoleName = "CONSOLE"

// consoleSender is the operator at the host's terminal.
type consoleSender struct {
	mu     sync.Mutex
	grants permission.Set
	out    io.Writer
}

func newConsoleSender(grants []string, out io.Writer) *consoleSender {
	return &consoleSender{grants: append(permission.Set(nil), grants...), out: out}
}

func (s *consoleSender) Name() string                 { return ConsoleName }
func (s *consoleSender) Permissions() permission.Set  { return s.grants }
func (s *consoleSender) IsConsole() bool              { return true }
func (s *consoleSender) Channel() command.ChannelKind { return command.ChannelAll }

func (s *consoleSender) Send(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, msg)
}

// Execute runs one console line. A CommandEvent is fired first; when a
// listener cancels it the line is dropped.
func (a *App) Execute(ctx context.Context, line string) command.Outcome {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command.OutcomeNotFound
	}
	alias, args := fields[0], fields[1:]

	ev := &api.CommandEvent{Sender: a.console.Name(), Alias: alias, Args: args}
	if res := a.bus.Fire(ctx, ev, nil); res.Cancelled {
		a.logger.Debug("console command cancelled", zap.String("alias", alias))
		a.console.Send(a.catalog.Translate("console.cancelled"))
		return command.OutcomeNotFound
	}

	outcome := a.commands.DispatchAny(ctx, a.console, alias, args)
	if outcome == command.OutcomeNotFound {
		a.console.Send(a.catalog.Translate(command.MsgUnknownCommand))
	}
	return outcome
}

// readConsole executes lines from r until ctx is done. EOF ends reading
// but not the host. When ctx ends, r is closed if it is an io.Closer
// other than stdin, and readConsole waits for the scanner to return.
func (a *App) readConsole(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			a.logger.Warn("console read", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if c, ok := r.(io.Closer); ok && r != os.Stdin {
				if err := c.Close(); err != nil {
					a.logger.Debug("close console input", zap.Error(err))
				}
				for range lines {
				}
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				a.logger.Debug("console input closed")
				return nil
			}
			a.Execute(ctx, line)
		}
	}
}
