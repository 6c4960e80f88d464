package bridge

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/protocol"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// Conn is one sidecar socket.
type Conn struct {
	ws   *websocket.Conn
	name string
	cfg  Config
	log  logger.Logger

	events chan domain.Event
	done   chan struct{}
	exited chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Frame

	once    sync.Once
	running atomic.Bool
}

var (
	_ protocol.Conn          = (*Conn)(nil)
	_ protocol.MessageSender = (*Conn)(nil)
)

func newConn(ws *websocket.Conn, name string, cfg Config, log logger.Logger) *Conn {
	return &Conn{
		ws:      ws,
		name:    name,
		cfg:     cfg,
		log:     log,
		events:  make(chan domain.Event, 16),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		pending: make(map[string]chan *Frame),
	}
}

func (c *Conn) start() {
	c.running.Store(true)
	go c.readLoop()
	go c.pingLoop()
}

// Events implements protocol.Conn.
func (c *Conn) Events() <-chan domain.Event {
	return c.events
}

// Logout implements protocol.Conn.
func (c *Conn) Logout(ctx context.Context) error {
	_, err := c.request(ctx, &Frame{Type: FrameLogout})
	return err
}

// SendText implements protocol.MessageSender.
func (c *Conn) SendText(ctx context.Context, to, text string) (string, error) {
	ack, err := c.request(ctx, &Frame{Type: FrameSend, To: to, Text: text})
	if err != nil {
		return "", err
	}
	return ack.MessageID, nil
}

// Terminate implements protocol.Conn. It returns after the read loop has
// exited and the event channel is closed.
func (c *Conn) Terminate() {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "terminate"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
	if c.running.Load() {
		<-c.exited
	}
}

func (c *Conn) request(ctx context.Context, f *Frame) (*Frame, error) {
	f.ID = ulid.MustNew(ulid.Now(), rand.Reader).String()
	ack := make(chan *Frame, 1)

	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[f.ID] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.pending != nil {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
	}()

	if err := c.write(f); err != nil {
		return nil, err
	}

	select {
	case a, ok := <-ack:
		if !ok {
			return nil, ErrClosed
		}
		if a.Error != "" {
			return nil, errors.New(a.Error)
		}
		return a, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) write(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteJSON(f)
}

func (c *Conn) readLoop() {
	defer func() {
		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pending = nil
		c.mu.Unlock()
		close(c.events)
		close(c.exited)
	}()

	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("sidecar socket lost", "error", err)
				c.emit(domain.EventClose{Reason: lostReason(err)})
			}
			_ = c.ws.Close()
			return
		}

		if f.Type == FrameAck {
			c.resolve(&f)
			continue
		}
		e, ok := f.event()
		if !ok {
			c.log.Debug("ignoring frame", "type", f.Type)
			continue
		}
		if !c.emit(e) {
			return
		}
		if f.Type == FrameClose {
			_ = c.ws.Close()
			return
		}
	}
}

func (c *Conn) pingLoop() {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		case <-c.exited:
			return
		}
	}
}

func (c *Conn) emit(e domain.Event) bool {
	select {
	case c.events <- e:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) resolve(f *Frame) {
	c.mu.Lock()
	ch := c.pending[f.ID]
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- f:
	default:
	}
}

func lostReason(err error) domain.CloseReason {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return domain.CloseReason{Kind: domain.CloseConnectionClosed, Message: ce.Text}
		}
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return domain.CloseReason{Kind: domain.CloseTimedOut, Message: err.Error()}
	}
	return domain.CloseReason{Kind: domain.CloseConnectionLost, Message: err.Error()}
}
