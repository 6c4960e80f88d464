package bridge

import (
	"github.com/yndnr/pairlink-go/internal/core/domain"
)

// Frame types.
const (
	FrameHello  = "hello"
	FrameQR     = "qr"
	FrameOpen   = "open"
	FrameCreds  = "creds"
	FrameClose  = "close"
	FrameLogout = "logout"
	FrameSend   = "send"
	FrameAck    = "ack"
)

// Frame is one message on the sidecar socket. Only the fields relevant
// to Type are set.
type Frame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	Session     string              `json:"session,omitempty"`
	Code        string              `json:"code,omitempty"`
	Identity    *domain.Identity    `json:"identity,omitempty"`
	Credentials *domain.Credentials `json:"credentials,omitempty"`
	Reason      *domain.CloseReason `json:"reason,omitempty"`

	To        string `json:"to,omitempty"`
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// event converts an inbound frame into a lifecycle event. ok is false for
// frames that carry no event.
func (f *Frame) event() (e domain.Event, ok bool) {
	switch f.Type {
	case FrameQR:
		if f.Code == "" {
			return nil, false
		}
		return domain.EventPairingCode{Code: f.Code}, true
	case FrameOpen:
		if f.Identity == nil {
			return domain.EventOpen{}, true
		}
		return domain.EventOpen{Identity: *f.Identity}, true
	case FrameCreds:
		if f.Credentials == nil {
			return nil, false
		}
		return domain.EventCredentials{Credentials: f.Credentials}, true
	case FrameClose:
		reason := domain.CloseReason{Kind: domain.CloseUnknown}
		if f.Reason != nil && f.Reason.Kind != "" {
			reason = *f.Reason
		}
		return domain.EventClose{Reason: reason}, true
	default:
		return nil, false
	}
}
