package handler

import (
	"time"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/infra/buildinfo"
)

// Response is the standard API response envelope.
// All JSON responses use this format except /metrics, the health probes
// and the legacy routes.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"` // Additional error details
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// StartSessionRequest is the request body for POST /sessions.
type StartSessionRequest struct {
	SessionName string `json:"session_name"`

	// WaitSeconds bounds the wait for a usable state. Omitted uses the
	// server default; zero or negative returns immediately.
	WaitSeconds *float64 `json:"wait_seconds,omitempty"`
}

// StartSessionResponse is the response body for POST /sessions.
type StartSessionResponse struct {
	Session *domain.Session `json:"session"`
	Created bool            `json:"created"`
	Ready   bool            `json:"ready"`
}

// ListSessionsResponse is the response body for GET /sessions.
type ListSessionsResponse struct {
	Items []*domain.Session `json:"items"`
	Total int               `json:"total"`
}

// LogoutResponse is the response body for POST /sessions/{name}/logout.
type LogoutResponse struct {
	SessionName string `json:"session_name"`
	Existed     bool   `json:"existed"`
}

// SendMessageRequest is the request body for POST /sessions/{name}/messages.
type SendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendMessageResponse is the response body for POST /sessions/{name}/messages.
type SendMessageResponse struct {
	MessageID string `json:"message_id"`
}

// StatusSummaryResponse is the response body for GET /admin/v1/status/summary.
type StatusSummaryResponse struct {
	Build             buildinfo.Info `json:"build"`
	Sessions          int            `json:"sessions"`
	ByState           map[string]int `json:"by_state"`
	PendingReconnects int            `json:"pending_reconnects"`
	Time              time.Time      `json:"time"`
}

// Legacy route bodies. Field names follow the routes they replace.

// LegacyStartRequest is the request body for POST /start-session.
type LegacyStartRequest struct {
	SessionName string `json:"sessionName"`
}

// LegacyStartResponse is the response body for POST /start-session.
type LegacyStartResponse struct {
	QR        string           `json:"qr,omitempty"`
	Connected bool             `json:"connected"`
	User      *domain.Identity `json:"user,omitempty"`
	State     domain.State     `json:"state"`
}

// LegacyStatusResponse is the response body for GET /status/{name}.
type LegacyStatusResponse struct {
	Connected bool             `json:"connected"`
	User      *domain.Identity `json:"user,omitempty"`
	State     domain.State     `json:"state,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// LegacySendRequest is the request body for POST /send-message.
type LegacySendRequest struct {
	SessionName string `json:"sessionName"`
	Number      string `json:"number"`
	Message     string `json:"message"`
}

// LegacyResult is the body of legacy routes that only report success.
type LegacyResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
}

// LegacyError is the error body of the legacy routes.
type LegacyError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
