package domain

import "strings"

// State is the lifecycle state of a session.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateAwaitingScan State = "AWAITING_SCAN"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateDisconnected State = "DISCONNECTED"
	StateError        State = "ERROR"
)

// AllStates lists every lifecycle state, in graph order.
var AllStates = []State{
	StateInitializing,
	StateAwaitingScan,
	StateConnecting,
	StateConnected,
	StateReconnecting,
	StateDisconnected,
	StateError,
}

// IsTerminal reports whether the state accepts no further transitions.
// Terminal entries are evictable: a new start replaces them.
func (s State) IsTerminal() bool {
	return s == StateDisconnected || s == StateError
}

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// ParseState parses a state name case-insensitively.
func ParseState(v string) (State, bool) {
	s := State(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", false
	}
	return s, true
}

// forward lists the non-failure edges of the lifecycle graph.
// RECONNECTING, DISCONNECTED and ERROR are reachable from every
// non-terminal state and are handled in CanTransition.
var forward = map[State][]State{
	StateInitializing: {StateAwaitingScan, StateConnecting, StateConnected},
	StateAwaitingScan: {StateConnecting, StateConnected},
	StateConnecting:   {StateAwaitingScan, StateConnected},
	StateConnected:    {},
	StateReconnecting: {StateConnecting},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StateReconnecting:
		return true
	case StateDisconnected, StateError:
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}
