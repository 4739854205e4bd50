package manager

// State is where a plugin is in its lifecycle.
type State int

const (
	// StateUnloaded plugins have been added but not initialized.
	StateUnloaded State = iota

	// StateInitialized plugins accepted activation and are active.
	StateInitialized

	// StateDeclined plugins returned false from Initialize. They are never called again.
	StateDeclined

	// StateFailed plugins panicked during Initialize. They are never called again.
	StateFailed

	// StateDisabled plugins were excluded by the enable/disable lists.
	StateDisabled

	// StateShutdown plugins have been shut down.
	StateShutdown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateInitialized:
		return "initialized"
	case StateDeclined:
		return "declined"
	case StateFailed:
		return "failed"
	case StateDisabled:
		return "disabled"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Active reports whether plugins in this state are queried for extensions.
func (s State) Active() bool {
	return s == StateInitialized
}
