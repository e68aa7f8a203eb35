package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/cutlet/internal/permission"
)

// ChannelKind is the conversational context a sender writes from.
type ChannelKind int

const (
	// ChannelAll matches every channel kind.
	ChannelAll ChannelKind = iota

	// ChannelPrivate is a one-to-one conversation.
	ChannelPrivate

	// ChannelConversation is a group conversation.
	ChannelConversation
)

// String returns the channel kind name.
func (k ChannelKind) String() string {
	switch k {
	case ChannelAll:
		return "all"
	case ChannelPrivate:
		return "private"
	case ChannelConversation:
		return "conversation"
	default:
		return fmt.Sprintf("ChannelKind(%d)", int(k))
	}
}

// Allows reports whether a command restricted to k accepts a sender on
// other. ChannelAll on either side matches every kind, so a sender on all
// channels (the console) reaches any command.
func (k ChannelKind) Allows(other ChannelKind) bool {
	return k == ChannelAll || other == ChannelAll || k == other
}

// ParseChannelKind parses a channel kind name.
func ParseChannelKind(s string) (ChannelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return ChannelAll, nil
	case "private", "private_message":
		return ChannelPrivate, nil
	case "conversation", "group":
		return ChannelConversation, nil
	}
	return ChannelAll, fmt.Errorf("unknown channel kind %q", s)
}

// Sender is whoever issued a command line.
type Sender interface {
	Name() string
	Permissions() permission.Set
	IsConsole() bool
	Channel() ChannelKind
	Send(msg string)
}

// Executor runs a command.
type Executor interface {
	Execute(ctx context.Context, sender Sender, alias string, args []string) error
}

// ExecutorFunc is a function adapter for Executor.
type ExecutorFunc func(ctx context.Context, sender Sender, alias string, args []string) error

// Execute implements the Executor interface.
func (f ExecutorFunc) Execute(ctx context.Context, sender Sender, alias string, args []string) error {
	return f(ctx, sender, alias, args)
}

// Command describes a registered command.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string

	// Permission required to run the command. Empty means everyone.
	Permission string

	// ConsoleOnly rejects senders other than the console.
	ConsoleOnly bool

	// Channels restricts the channel kinds the command is meant for.
	// Empty means every kind. The restriction is advisory: a mismatching
	// sender is warned and the command still runs.
	Channels []ChannelKind

	Run Executor
}

// Owner is the extension a command belongs to.
type Owner interface {
	ID() string
	Enabled() bool
}

// Translator resolves message keys.
type Translator interface {
	Translate(key string) string
}

// Message keys sent to senders.
const (
	MsgNoPermission       = "no_permission"
	MsgOnlyConsole        = "only_console"
	MsgUnsupportedChannel = "unsupported_channel"
	MsgCommandError       = "command_error"
	MsgUnknownCommand     = "unknown_command"
)

// Outcome describes what Dispatch did.
type Outcome int

const (
	// OutcomeNotFound means no command matched the alias.
	OutcomeNotFound Outcome = iota

	// OutcomeExecuted means the executor ran and returned nil.
	OutcomeExecuted

	// OutcomeNoPermission means the sender lacked the permission.
	OutcomeNoPermission

	// OutcomeConsoleOnly means a non-console sender used a console command.
	OutcomeConsoleOnly

	// OutcomeFailed means the executor returned an error or panicked.
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExecuted:
		return "executed"
	case OutcomeNoPermission:
		return "no_permission"
	case OutcomeConsoleOnly:
		return "console_only"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}
