// Package protocol defines the boundary between the session lifecycle and
// the wire protocol that actually talks to the messaging network.
//
// A driver dials one connection per attempt. The connection reports what
// happens to it as domain events on a single channel and never touches
// session state itself.
package protocol

import (
	"context"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

// Driver names accepted in configuration.
const (
	DriverBridge    = "bridge"
	DriverSimulated = "simulated"
)

// Dialer opens protocol connections.
type Dialer interface {
	// Dial starts a connection for the named session using creds.
	// Unregistered credentials lead to pairing codes on the event channel.
	// An error means no connection exists and nothing needs terminating.
	Dial(ctx context.Context, name string, creds *domain.Credentials) (Conn, error)
}

// Conn is one live connection attempt.
//
// Events is closed once the connection is gone. After Terminate returns
// the connection delivers no further events, so a reader may drop the
// channel without draining it.
type Conn interface {
	Events() <-chan domain.Event

	// Logout asks the remote end to unlink the device. Best effort.
	Logout(ctx context.Context) error

	// Terminate tears the connection down. Safe to call more than once.
	Terminate()
}

// MessageSender is implemented by connections that can send text.
type MessageSender interface {
	SendText(ctx context.Context, to, text string) (string, error)
}
