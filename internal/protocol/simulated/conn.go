package simulated

import (
	"context"
	"sync"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/protocol"
)

// Conn is one simulated connection.
type Conn struct {
	net   *Network
	name  string
	creds *domain.Credentials

	events   chan domain.Event
	done     chan struct{}
	inflight sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	closing  bool
	isOpen   bool
	once     sync.Once
	finished chan struct{}
}

var (
	_ protocol.Conn          = (*Conn)(nil)
	_ protocol.MessageSender = (*Conn)(nil)
)

func newConn(n *Network, name string, creds *domain.Credentials) *Conn {
	return &Conn{
		net:      n,
		name:     name,
		creds:    creds.Clone(),
		events:   make(chan domain.Event, 16),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Events implements protocol.Conn.
func (c *Conn) Events() <-chan domain.Event {
	return c.events
}

// Logout implements protocol.Conn.
func (c *Conn) Logout(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.net.recordLogout(c.name)
	return nil
}

// Terminate implements protocol.Conn. It returns once the event channel
// is closed.
func (c *Conn) Terminate() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		c.mu.Unlock()

		c.inflight.Wait()
		close(c.events)
		close(c.finished)
	})
	<-c.finished
}

// SendText implements protocol.MessageSender.
func (c *Conn) SendText(ctx context.Context, to, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	ok := !c.closed && !c.closing && c.isOpen
	c.mu.Unlock()
	if !ok {
		return "", ErrNoConnection
	}
	return c.net.recordSend(c.name, to, text), nil
}

// emit delivers e unless the connection is closed.
func (c *Conn) emit(e domain.Event) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	select {
	case c.events <- e:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) open(id domain.Identity) {
	c.mu.Lock()
	c.isOpen = true
	c.mu.Unlock()
	if c.emit(domain.EventOpen{Identity: id}) {
		c.net.recordOpen(c.name)
	}
}

func (c *Conn) issueCode() error {
	code, err := newPairingCode(c.name)
	if err != nil {
		return err
	}
	if !c.emit(domain.EventPairingCode{Code: code}) {
		return ErrNoConnection
	}
	return nil
}

// closeWith reports reason and then closes the event stream.
func (c *Conn) closeWith(reason domain.CloseReason) {
	c.mu.Lock()
	if c.closing || c.closed {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.mu.Unlock()

	c.emit(domain.EventClose{Reason: reason})
	go c.Terminate()
}

func (c *Conn) registered() bool {
	return c.creds != nil && c.creds.Registered
}

// live reports whether the connection is neither closed nor closing.
func (c *Conn) live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.closing
}
