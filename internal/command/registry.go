// Package command implements per-owner command registration and dispatch.
//
// Every extension has its own namespace, so two extensions may both
// register "help". Host commands live in the console namespace, selected
// by a nil Owner. Names and aliases are case folded.
package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/dshills/cutlet/internal/i18n"
	"github.com/dshills/cutlet/internal/permission"
)

const consoleID = ""

type entry struct {
	owner Owner
	cmd   *Command
}

// Registry stores commands by owner.
type Registry struct {
	mu     sync.RWMutex
	spaces map[string]map[string]entry

	engine     *permission.Engine
	translator Translator
	logger     *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithEngine sets the permission engine used for checks.
func WithEngine(e *permission.Engine) Option {
	return func(r *Registry) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithTranslator sets the translator for sender messages.
func WithTranslator(t Translator) Option {
	return func(r *Registry) {
		if t != nil {
			r.translator = t
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		spaces:     make(map[string]map[string]entry),
		engine:     permission.New(),
		translator: i18n.New(nil),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// fold normalizes a name or alias. A Caser keeps state, so one is made
// per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func ownerID(o Owner) string {
	if o == nil {
		return consoleID
	}
	return o.ID()
}

// Register adds cmd under owner. A nil owner registers a console command.
// It returns false without changing anything when the name or an alias is
// already taken in that owner's namespace, when cmd is incomplete or when
// the owner is not enabled.
func (r *Registry) Register(owner Owner, cmd *Command) bool {
	id := ownerID(owner)
	if cmd == nil || strings.TrimSpace(cmd.Name) == "" || cmd.Run == nil {
		r.logger.Warn("incomplete command rejected", zap.String("owner", id))
		return false
	}
	if owner != nil && !owner.Enabled() {
		r.logger.Warn("command registration from disabled owner ignored",
			zap.String("owner", id), zap.String("command", cmd.Name))
		return false
	}

	keys := make([]string, 0, 1+len(cmd.Aliases))
	seen := make(map[string]bool, 1+len(cmd.Aliases))
	for _, k := range append([]string{cmd.Name}, cmd.Aliases...) {
		f := fold(k)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		keys = append(keys, f)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	space := r.spaces[id]
	for _, k := range keys {
		if _, exists := space[k]; exists {
			r.logger.Warn("command already registered",
				zap.String("owner", id), zap.String("command", cmd.Name), zap.String("alias", k))
			return false
		}
	}
	if space == nil {
		space = make(map[string]entry)
		r.spaces[id] = space
	}
	e := entry{owner: owner, cmd: cmd}
	for _, k := range keys {
		space[k] = e
	}
	return true
}

// Lookup finds a command by name or alias in owner's namespace.
func (r *Registry) Lookup(owner Owner, alias string) (*Command, bool) {
	e, ok := r.lookup(ownerID(owner), fold(alias))
	return e.cmd, ok
}

func (r *Registry) lookup(id, key string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.spaces[id][key]
	return e, ok
}

// Find searches the console namespace first and then every owner in
// sorted id order. It returns the owning extension or nil for console
// commands.
func (r *Registry) Find(alias string) (*Command, Owner, bool) {
	e, ok := r.find(fold(alias))
	return e.cmd, e.owner, ok
}

func (r *Registry) find(key string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.spaces[consoleID][key]; ok {
		return e, true
	}
	ids := make([]string, 0, len(r.spaces))
	for id := range r.spaces {
		if id != consoleID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if e, ok := r.spaces[id][key]; ok {
			return e, true
		}
	}
	return entry{}, false
}

// Dispatch runs the command registered under owner as alias.
func (r *Registry) Dispatch(ctx context.Context, sender Sender, owner Owner, alias string, args []string) Outcome {
	e, ok := r.lookup(ownerID(owner), fold(alias))
	if !ok {
		return OutcomeNotFound
	}
	return r.execute(ctx, sender, e, alias, args)
}

// DispatchAny resolves alias with Find and runs it.
func (r *Registry) DispatchAny(ctx context.Context, sender Sender, alias string, args []string) Outcome {
	e, ok := r.find(fold(alias))
	if !ok {
		return OutcomeNotFound
	}
	return r.execute(ctx, sender, e, alias, args)
}

func (r *Registry) execute(ctx context.Context, sender Sender, e entry, alias string, args []string) Outcome {
	cmd := e.cmd

	if !sender.Permissions().Has(r.engine, cmd.Permission) {
		sender.Send(r.translator.Translate(MsgNoPermission))
		return OutcomeNoPermission
	}
	if cmd.ConsoleOnly && !sender.IsConsole() {
		sender.Send(r.translator.Translate(MsgOnlyConsole))
		return OutcomeConsoleOnly
	}
	if !channelAllowed(cmd.Channels, sender.Channel()) {
		// Advisory only; execution continues.
		sender.Send(r.translator.Translate(MsgUnsupportedChannel))
	}

	if err := r.run(ctx, sender, e, alias, args); err != nil {
		fields := []zap.Field{
			zap.String("owner", ownerID(e.owner)),
			zap.String("command", cmd.Name),
			zap.String("sender", sender.Name()),
			zap.Error(err),
		}
		r.logger.Error("command failed", fields...)
		sender.Send(r.translator.Translate(MsgCommandError))
		return OutcomeFailed
	}
	return OutcomeExecuted
}

func (r *Registry) run(ctx context.Context, sender Sender, e entry, alias string, args []string) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &ExecutionError{
				OwnerID: ownerID(e.owner),
				Command: e.cmd.Name,
				Err:     fmt.Errorf("%w: %v\n%s", ErrPanic, v, debug.Stack()),
			}
		}
	}()
	if runErr := e.cmd.Run.Execute(ctx, sender, alias, args); runErr != nil {
		return &ExecutionError{OwnerID: ownerID(e.owner), Command: e.cmd.Name, Err: runErr}
	}
	return nil
}

func channelAllowed(allowed []ChannelKind, kind ChannelKind) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, k := range allowed {
		if k.Allows(kind) {
			return true
		}
	}
	return false
}

// UnregisterAll removes every command of owner and returns how many
// distinct commands were removed.
func (r *Registry) UnregisterAll(owner Owner) int {
	id := ownerID(owner)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(distinct(r.spaces[id]))
	delete(r.spaces, id)
	return n
}

// Commands returns owner's commands sorted by name.
func (r *Registry) Commands(owner Owner) []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := distinct(r.spaces[ownerID(owner)])
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

func distinct(space map[string]entry) []*Command {
	seen := make(map[*Command]bool, len(space))
	cmds := make([]*Command, 0, len(space))
	for _, e := range space {
		if !seen[e.cmd] {
			seen[e.cmd] = true
			cmds = append(cmds, e.cmd)
		}
	}
	return cmds
}
