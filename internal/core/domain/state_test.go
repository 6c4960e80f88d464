package domain

import "testing"

func TestStateIsTerminal(t *testing.T) {
	for _, s := range AllStates {
		want := s == StateDisconnected || s == StateError
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		in   string
		want State
		ok   bool
	}{
		{"connected", StateConnected, true},
		{" AWAITING_SCAN ", StateAwaitingScan, true},
		{"Reconnecting", StateReconnecting, true},
		{"open", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseState(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseState(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateInitializing, StateAwaitingScan, true},
		{StateInitializing, StateConnecting, true},
		{StateInitializing, StateConnected, true},
		{StateAwaitingScan, StateConnecting, true},
		{StateAwaitingScan, StateConnected, true},
		{StateAwaitingScan, StateInitializing, false},
		{StateConnecting, StateAwaitingScan, true},
		{StateConnecting, StateConnected, true},
		{StateConnected, StateAwaitingScan, false},
		{StateConnected, StateConnecting, false},
		{StateConnected, StateReconnecting, true},
		{StateReconnecting, StateConnecting, true},
		{StateReconnecting, StateConnected, false},
		{StateReconnecting, StateReconnecting, true},
		{StateConnected, StateDisconnected, true},
		{StateAwaitingScan, StateError, true},

		// Terminal states are absorbing.
		{StateDisconnected, StateConnecting, false},
		{StateDisconnected, StateReconnecting, false},
		{StateError, StateConnected, false},
		{StateError, StateDisconnected, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEveryNonTerminalStateCanFail(t *testing.T) {
	for _, s := range AllStates {
		if s.IsTerminal() {
			continue
		}
		for _, to := range []State{StateReconnecting, StateDisconnected, StateError} {
			if !CanTransition(s, to) {
				t.Errorf("CanTransition(%s, %s) = false, want true", s, to)
			}
		}
	}
}
