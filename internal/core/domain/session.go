package domain

import (
	"crypto/rand"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session constraints.
const (
	MaxSessionNameLength = 64

	// AttemptIDPrefix is the prefix for connection attempt IDs.
	AttemptIDPrefix = "plat-"

	// UserServer is the address suffix for bare phone-number recipients.
	UserServer = "@s.whatsapp.net"
)

// sessionNamePattern restricts names to characters that are safe both as
// credential store keys and as URL path segments.
var sessionNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// PairingArtifact is a one-time pairing code together with its rendered
// image. It is only present while the session is AWAITING_SCAN.
type PairingArtifact struct {
	// Code is the raw pairing payload issued by the remote end.
	Code string `json:"code"`

	// Image is the rendered form (PNG data URL).
	Image string `json:"image"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the artifact is past its expiry window at now.
func (p *PairingArtifact) Expired(now time.Time) bool {
	return p == nil || !now.Before(p.ExpiresAt)
}

// Identity is the remote account confirmed when pairing completes.
type Identity struct {
	// ID is the protocol-level account identifier (e.g. a JID).
	ID string `json:"id"`

	// Name is the display name reported by the remote end.
	Name string `json:"name,omitempty"`
}

// ErrorInfo is the diagnostic cause kept on a session in ERROR.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorInfo captures err for diagnostics.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	code := GetErrorCode(err)
	if code == "" {
		code = ErrInternalServer.Code
	}
	return &ErrorInfo{Code: code, Message: err.Error()}
}

// Session is the per-session lifecycle record kept in the registry.
//
// Registry entries are immutable snapshots: every transition commits a
// fresh clone, so readers never observe a half-applied change.
type Session struct {
	// Name is the caller-supplied identity and primary key.
	Name string `json:"name"`

	State State `json:"state"`

	// Pairing is set only in AWAITING_SCAN.
	Pairing *PairingArtifact `json:"pairing,omitempty"`

	// Identity is set from CONNECTED onward and cleared on disconnect.
	Identity *Identity `json:"identity,omitempty"`

	CreatedAt        time.Time `json:"created_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`

	// ReconnectAttempt counts reconnects since the last CONNECTED.
	ReconnectAttempt int `json:"reconnect_attempt"`

	// PairingAttempt counts pairing artifacts issued without a scan.
	PairingAttempt int `json:"pairing_attempt"`

	// AttemptID identifies the current connection attempt.
	AttemptID string `json:"attempt_id,omitempty"`

	// LastError is the retained cause for ERROR (and the last transient
	// failure while RECONNECTING).
	LastError *ErrorInfo `json:"last_error,omitempty"`

	// Version increments on every committed transition.
	Version uint64 `json:"version"`
}

// NewSession creates a Session in INITIALIZING, stamped with now.
func NewSession(name string, now time.Time) *Session {
	return &Session{
		Name:             name,
		State:            StateInitializing,
		CreatedAt:        now,
		LastTransitionAt: now,
		Version:          1,
	}
}

// GenerateAttemptID generates a connection attempt ID using ULID.
func GenerateAttemptID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return AttemptIDPrefix + strings.ToLower(id.String()), nil
}

// ValidateSessionName rejects names before any state is touched.
func ValidateSessionName(name string) error {
	switch {
	case name == "":
		return ErrSessionValidation.WithDetails("session name is required")
	case len(name) > MaxSessionNameLength:
		return ErrSessionValidation.WithDetails("session name exceeds 64 characters")
	case !sessionNamePattern.MatchString(name):
		return ErrSessionValidation.WithDetails("session name may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}

// NormalizeRecipient turns a bare phone number into a user address.
// Addresses that already carry a server part are returned unchanged.
func NormalizeRecipient(to string) string {
	to = strings.TrimSpace(to)
	if to == "" || strings.Contains(to, "@") {
		return to
	}
	return strings.TrimPrefix(to, "+") + UserServer
}

// Validate checks the record against the data model invariants.
func (s *Session) Validate() error {
	if err := ValidateSessionName(s.Name); err != nil {
		return err
	}
	if !s.State.IsValid() {
		return ErrSessionValidation.WithDetails("unknown state " + string(s.State))
	}
	if s.Pairing != nil && s.State != StateAwaitingScan {
		return ErrSessionValidation.WithDetails("pairing artifact outside AWAITING_SCAN")
	}
	if s.Identity != nil && s.State != StateConnected {
		return ErrSessionValidation.WithDetails("identity outside CONNECTED")
	}
	return nil
}

// Transition returns a copy moved to the given state. The pairing
// artifact and the confirmed identity are dropped when the new state does
// not carry them.
func (s *Session) Transition(to State, at time.Time) (*Session, error) {
	if s.State != to && !CanTransition(s.State, to) {
		return nil, ErrInvalidTransition.WithDetails(string(s.State) + " -> " + string(to))
	}
	next := s.Clone()
	next.State = to
	next.LastTransitionAt = at
	if to != StateAwaitingScan {
		next.Pairing = nil
	}
	if to != StateConnected {
		next.Identity = nil
	}
	next.Version++
	return next, nil
}

// Usable reports whether the session can be handed to a caller as is:
// connected, or awaiting a scan with a pairing artifact that is still fresh.
func (s *Session) Usable(now time.Time) bool {
	switch s.State {
	case StateConnected:
		return true
	case StateAwaitingScan:
		return !s.Pairing.Expired(now)
	default:
		return false
	}
}

// PairingExpired reports whether the session sits in AWAITING_SCAN with an
// artifact past its window. Such an entry exists but needs a fresh attempt.
func (s *Session) PairingExpired(now time.Time) bool {
	return s.State == StateAwaitingScan && s.Pairing.Expired(now)
}

// WithoutPairing returns a view with the pairing artifact stripped.
func (s *Session) WithoutPairing() *Session {
	c := s.Clone()
	c.Pairing = nil
	return c
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	if s.Pairing != nil {
		p := *s.Pairing
		clone.Pairing = &p
	}
	if s.Identity != nil {
		id := *s.Identity
		clone.Identity = &id
	}
	if s.LastError != nil {
		e := *s.LastError
		clone.LastError = &e
	}
	return &clone
}
