package plugin

// State is the lifecycle state of an extension.
type State int

// Extension states.
const (
	// StateDiscovered - descriptor parsed, not yet resolved.
	StateDiscovered State = iota

	// StateLoaded - instantiated and load hook ran.
	StateLoaded

	// StateEnabled - enable hook ran; registrations are accepted.
	StateEnabled

	// StateDisabled - disable hook ran and registrations were revoked.
	StateDisabled

	// StateFailed - resolution, instantiation or activation failed.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLoaded:
		return "loaded"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for states no extension leaves during a run.
func (s State) IsTerminal() bool {
	return s == StateDisabled || s == StateFailed
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateDiscovered:
		return next == StateLoaded || next == StateFailed
	case StateLoaded:
		return next == StateEnabled || next == StateFailed
	case StateEnabled:
		return next == StateDisabled || next == StateFailed
	default:
		return false
	}
}
