// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import "fmt"

// State is a plugin's lifecycle position. A native handle is held iff the
// state is Enabled or Running.
type State int

const (
	// StateDiscovered means a valid manifest is known but the library
	// artifact has not been verified present.
	StateDiscovered State = iota

	// StateInstalled means the plugin's files are present on disk.
	StateInstalled

	// StateEnabled means the library is loaded, entry points are resolved,
	// and the plugin's initializer succeeded.
	StateEnabled

	// StateRunning refines Enabled: at least one message call is in flight.
	StateRunning

	// StateDisabled means the library was unloaded but files are retained.
	StateDisabled

	// StateFailed holds until retried; the record carries last_error.
	StateFailed
)

var stateNames = map[State]string{
	StateDiscovered: "discovered",
	StateInstalled:  "installed",
	StateEnabled:    "enabled",
	StateRunning:    "running",
	StateDisabled:   "disabled",
	StateFailed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Loaded reports whether a native handle is held in this state.
func (s State) Loaded() bool {
	return s == StateEnabled || s == StateRunning
}

// ParseState maps a persisted state name back to a State. Used when
// restoring the catalog on startup.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return StateFailed, fmt.Errorf("unknown plugin state %q", name)
}
