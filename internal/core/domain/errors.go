package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Error codes follow the format PL-<AREA>-<NNNN>; the last four digits
// carry the HTTP status class the API layer maps them to.
type DomainError struct {
	Code    string // Error code (e.g., "PL-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionNotFound indicates no session is registered under the name.
	ErrSessionNotFound = NewDomainError("PL-SESS-4040", "session not found")

	// ErrSessionValidation indicates the session name is missing or malformed.
	ErrSessionValidation = NewDomainError("PL-SESS-4001", "session validation failed")

	// ErrSessionNotConnected indicates an operation that needs a live,
	// paired connection was issued against a session in another state.
	ErrSessionNotConnected = NewDomainError("PL-SESS-4090", "session not connected")

	// ErrSessionReplaced indicates the remote end opened the same account
	// from another client; the session is parked in ERROR.
	ErrSessionReplaced = NewDomainError("PL-SESS-4091", "session replaced by another client")

	// ErrInvalidTransition indicates a state change outside the lifecycle graph.
	ErrInvalidTransition = NewDomainError("PL-SESS-5001", "invalid state transition")

	// ErrWaitTimeout indicates the caller's deadline passed before the
	// session became usable. The session itself keeps progressing.
	ErrWaitTimeout = NewDomainError("PL-SESS-2020", "session still progressing")

	// ErrPairingAbandoned indicates pairing artifacts kept expiring unscanned.
	ErrPairingAbandoned = NewDomainError("PL-SESS-4080", "pairing abandoned after repeated expiry")

	// ErrManagerClosed indicates the lifecycle manager is shutting down.
	ErrManagerClosed = NewDomainError("PL-SESS-5030", "session manager closed")
)

// ============================================================================
// Credential Errors (CRED)
// ============================================================================

var (
	// ErrCredentialNotFound indicates nothing is stored under the name.
	ErrCredentialNotFound = NewDomainError("PL-CRED-4040", "credentials not found")

	// ErrCredentialUnavailable indicates the credential store could not be reached.
	ErrCredentialUnavailable = NewDomainError("PL-CRED-5030", "credential store unavailable")

	// ErrCredentialCorrupt indicates stored credentials could not be decoded.
	ErrCredentialCorrupt = NewDomainError("PL-CRED-5031", "stored credentials corrupt")
)

// ============================================================================
// Connection Errors (CONN)
// ============================================================================

var (
	// ErrConnectionTransient indicates a network or handshake failure that
	// is retried with backoff.
	ErrConnectionTransient = NewDomainError("PL-CONN-5020", "transient connection failure")

	// ErrConnectionTerminal indicates the remote end logged the session out
	// or rejected its credentials.
	ErrConnectionTerminal = NewDomainError("PL-CONN-4010", "connection closed permanently")

	// ErrSendUnsupported indicates the protocol driver cannot send messages.
	ErrSendUnsupported = NewDomainError("PL-CONN-5010", "driver does not support sending")
)

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrAPIKeyMissing indicates no API key was provided.
	ErrAPIKeyMissing = NewDomainError("PL-AUTH-4010", "api key not provided")

	// ErrAPIKeyInvalid indicates the API key is not configured.
	ErrAPIKeyInvalid = NewDomainError("PL-AUTH-4011", "invalid api key")

	// ErrPermissionDenied indicates the key's role lacks the permission.
	ErrPermissionDenied = NewDomainError("PL-AUTH-4030", "permission denied")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("PL-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("PL-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("PL-SYS-5030", "service unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("PL-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("PL-SYS-4290", "too many requests")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("PL-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("PL-ARG-1002", "missing required argument")
)
