package domain

// Event is something a protocol connection reports about itself.
// Exactly one of the concrete types below.
type Event interface {
	eventKind() string
}

// EventPairingCode carries a fresh pairing payload that must be scanned.
type EventPairingCode struct {
	Code string
}

// EventOpen reports that the connection is authenticated and usable.
type EventOpen struct {
	Identity Identity
}

// EventClose reports that the connection is gone.
type EventClose struct {
	Reason CloseReason
}

// EventCredentials reports updated credentials that must be persisted.
type EventCredentials struct {
	Credentials *Credentials
}

func (EventPairingCode) eventKind() string { return "pairing_code" }
func (EventOpen) eventKind() string        { return "open" }
func (EventClose) eventKind() string       { return "close" }
func (EventCredentials) eventKind() string { return "credentials" }

// EventKind returns a short label for logging.
func EventKind(e Event) string {
	if e == nil {
		return "none"
	}
	return e.eventKind()
}

// CloseKind is the machine-readable cause carried by a close event.
type CloseKind string

const (
	CloseLoggedOut          CloseKind = "logged_out"
	CloseInvalidCredentials CloseKind = "invalid_credentials"
	CloseReplaced           CloseKind = "replaced"
	CloseConnectionLost     CloseKind = "connection_lost"
	CloseTimedOut           CloseKind = "timed_out"
	CloseConnectionClosed   CloseKind = "connection_closed"
	CloseRestartRequired    CloseKind = "restart_required"
	CloseUnknown            CloseKind = "unknown"
)

// CloseClass groups close kinds by how the lifecycle reacts to them.
type CloseClass int

const (
	// CloseRetryable schedules a reconnect with the stored credentials.
	CloseRetryable CloseClass = iota

	// CloseTerminal purges credentials and evicts the session.
	CloseTerminal

	// CloseFatal stops the session in ERROR but keeps credentials.
	CloseFatal
)

func (c CloseClass) String() string {
	switch c {
	case CloseTerminal:
		return "terminal"
	case CloseFatal:
		return "fatal"
	default:
		return "retryable"
	}
}

// CloseReason describes why a connection closed.
type CloseReason struct {
	Kind    CloseKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

// Classify maps a close reason to the lifecycle reaction. Unknown kinds
// are retried.
func (r CloseReason) Classify() CloseClass {
	switch r.Kind {
	case CloseLoggedOut, CloseInvalidCredentials:
		return CloseTerminal
	case CloseReplaced:
		return CloseFatal
	default:
		return CloseRetryable
	}
}

// Immediate reports whether the reconnect should skip the backoff delay.
// The remote end asks for a restart right after pairing completes.
func (r CloseReason) Immediate() bool {
	return r.Kind == CloseRestartRequired
}

func (r CloseReason) String() string {
	if r.Message == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + ": " + r.Message
}

// Err converts the reason into a domain error for diagnostics.
func (r CloseReason) Err() error {
	switch r.Classify() {
	case CloseTerminal:
		return ErrConnectionTerminal.WithDetails(r.String())
	case CloseFatal:
		return ErrSessionReplaced.WithDetails(r.String())
	default:
		return ErrConnectionTransient.WithDetails(r.String())
	}
}
