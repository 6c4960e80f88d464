// Package simulated provides an in-process protocol driver.
//
// A Network stands in for the remote messaging service: it issues pairing
// codes, accepts scans, drops connections on request and records sent
// messages. It is used by tests and by the server in demo mode.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/protocol"
	"github.com/yndnr/pairlink-go/pkg/token"
)

// ErrDialRefused is returned by Dial while injected failures remain.
var ErrDialRefused = errors.New("simulated: dial refused")

// ErrNoConnection is returned by controls aimed at a name without a live
// connection.
var ErrNoConnection = errors.New("simulated: no live connection")

// Message is a text recorded by SendText.
type Message struct {
	ID      string
	Session string
	To      string
	Text    string
}

// Option configures a Network.
type Option func(*Network)

// WithAutoPair confirms every pairing code after delay, as if someone
// scanned it. The identity is derived from the session name.
func WithAutoPair(delay time.Duration) Option {
	return func(n *Network) {
		n.autoPair = delay
	}
}

// WithDialDelay makes every Dial take d, as a slow handshake would. A
// cancelled context ends the wait early.
func WithDialDelay(d time.Duration) Option {
	return func(n *Network) {
		n.dialDelay = d
	}
}

// Network is a fake remote service shared by all connections.
type Network struct {
	mu        sync.Mutex
	conns     map[string]*Conn
	dials     map[string]int
	opens     map[string]int
	failDials map[string]int
	logouts   map[string]int
	sent      []Message
	autoPair  time.Duration
	dialDelay time.Duration
	msgSeq    int
}

var _ protocol.Dialer = (*Network)(nil)

// NewNetwork creates an empty Network.
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		conns:     make(map[string]*Conn),
		dials:     make(map[string]int),
		opens:     make(map[string]int),
		failDials: make(map[string]int),
		logouts:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Dial implements protocol.Dialer. Registered credentials open at once;
// unregistered ones receive a pairing code.
func (n *Network) Dial(ctx context.Context, name string, creds *domain.Credentials) (protocol.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.dials[name]++
	n.mu.Unlock()

	if n.dialDelay > 0 {
		t := time.NewTimer(n.dialDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}

	n.mu.Lock()
	if n.failDials[name] > 0 {
		n.failDials[name]--
		n.mu.Unlock()
		return nil, ErrDialRefused
	}
	c := newConn(n, name, creds)
	prev := n.conns[name]
	n.conns[name] = c
	n.mu.Unlock()

	if prev != nil {
		prev.closeWith(domain.CloseReason{Kind: domain.CloseConnectionClosed, Message: "superseded"})
	}

	if creds != nil && creds.Registered && creds.Identity != nil {
		c.open(*creds.Identity)
		return c, nil
	}

	if err := c.issueCode(); err != nil {
		c.Terminate()
		return nil, err
	}
	if n.autoPair > 0 {
		go func() {
			select {
			case <-time.After(n.autoPair):
				_ = n.confirm(c, domain.Identity{ID: name + "@s.whatsapp.net", Name: name})
			case <-c.done:
			}
		}()
	}
	return c, nil
}

// ConfirmPairing simulates a scan of the current code for name. The
// connection hands out registered credentials, then asks for a restart,
// as the real service does.
func (n *Network) ConfirmPairing(name string, id domain.Identity) error {
	c := n.live(name)
	if c == nil {
		return ErrNoConnection
	}
	return n.confirm(c, id)
}

func (n *Network) confirm(c *Conn, id domain.Identity) error {
	if c.registered() {
		return errors.New("simulated: connection is already paired")
	}
	creds := c.creds.Clone()
	if creds == nil {
		creds = &domain.Credentials{}
	}
	creds.Registered = true
	creds.Identity = &id
	creds.UpdatedAt = time.Now()

	if !c.emit(domain.EventCredentials{Credentials: creds}) {
		return ErrNoConnection
	}
	c.closeWith(domain.CloseReason{Kind: domain.CloseRestartRequired})
	return nil
}

// RotateCode issues a new pairing code on the live connection for name.
func (n *Network) RotateCode(name string) error {
	c := n.live(name)
	if c == nil {
		return ErrNoConnection
	}
	return c.issueCode()
}

// Drop closes the live connection for name with the given reason.
func (n *Network) Drop(name string, kind domain.CloseKind) error {
	c := n.live(name)
	if c == nil {
		return ErrNoConnection
	}
	c.closeWith(domain.CloseReason{Kind: kind, Message: "simulated"})
	return nil
}

// FailDials makes the next count dials for name fail.
func (n *Network) FailDials(name string, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failDials[name] = count
}

// Dials returns how many times name was dialed.
func (n *Network) Dials(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials[name]
}

// Opens returns how many connections for name reached the open state.
func (n *Network) Opens(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.opens[name]
}

// Logouts returns how many remote logouts name performed.
func (n *Network) Logouts(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.logouts[name]
}

// Active reports whether name has a live connection.
func (n *Network) Active(name string) bool {
	return n.live(name) != nil
}

// ActiveCount returns the number of live connections.
func (n *Network) ActiveCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.conns {
		if c.live() {
			count++
		}
	}
	return count
}

// Sent returns the messages sent through name.
func (n *Network) Sent(name string) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Message
	for _, m := range n.sent {
		if m.Session == name {
			out = append(out, m)
		}
	}
	return out
}

func (n *Network) live(name string) *Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := n.conns[name]
	if c == nil || !c.live() {
		return nil
	}
	return c
}

func (n *Network) recordOpen(name string) {
	n.mu.Lock()
	n.opens[name]++
	n.mu.Unlock()
}

func (n *Network) recordLogout(name string) {
	n.mu.Lock()
	n.logouts[name]++
	n.mu.Unlock()
}

func (n *Network) recordSend(name, to, text string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgSeq++
	id := fmt.Sprintf("sim-%d", n.msgSeq)
	n.sent = append(n.sent, Message{ID: id, Session: name, To: to, Text: text})
	return id
}

func newPairingCode(name string) (string, error) {
	ref, err := token.SecretN(18)
	if err != nil {
		return "", err
	}
	return "2@" + ref + "," + name, nil
}
