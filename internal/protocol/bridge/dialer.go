package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/infra/buildinfo"
	"github.com/yndnr/pairlink-go/internal/infra/tlsroots"
	"github.com/yndnr/pairlink-go/internal/protocol"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// Errors returned by the bridge driver.
var (
	ErrMissingURL = errors.New("bridge: sidecar url is required")
	ErrClosed     = errors.New("bridge: connection closed")
)

// Defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 20 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
)

// Config configures a Dialer.
type Config struct {
	// URL is the sidecar websocket endpoint, ws:// or wss://.
	URL string

	// CAFile adds a PEM bundle to the system roots for wss endpoints.
	CAFile string

	// Token is sent as a bearer token on the upgrade request.
	Token string

	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration

	Logger logger.Logger
}

// Dialer opens one sidecar socket per connection attempt.
type Dialer struct {
	url    *url.URL
	ws     *websocket.Dialer
	header http.Header
	cfg    Config
	log    logger.Logger
}

var _ protocol.Dialer = (*Dialer)(nil)

// NewDialer validates cfg and builds a Dialer.
func NewDialer(cfg Config) (*Dialer, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bridge: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("bridge: unsupported scheme %q", u.Scheme)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	ws := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if cfg.CAFile != "" {
		tlsCfg, err := tlsroots.ClientConfig(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		ws.TLSClientConfig = tlsCfg
	}

	header := http.Header{}
	header.Set("User-Agent", buildinfo.UserAgent("pairlink-server"))
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	return &Dialer{
		url:    u,
		ws:     ws,
		header: header,
		cfg:    cfg,
		log:    cfg.Logger.With("component", "bridge"),
	}, nil
}

// Dial implements protocol.Dialer.
func (d *Dialer) Dial(ctx context.Context, name string, creds *domain.Credentials) (protocol.Conn, error) {
	u := *d.url
	q := u.Query()
	q.Set("session", name)
	u.RawQuery = q.Encode()

	ws, resp, err := d.ws.DialContext(ctx, u.String(), d.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", d.url.Host, err)
	}

	c := newConn(ws, name, d.cfg, d.log.With("session", name))
	if err := c.write(&Frame{Type: FrameHello, Session: name, Credentials: creds}); err != nil {
		c.Terminate()
		return nil, fmt.Errorf("bridge: hello: %w", err)
	}
	c.start()
	return c, nil
}
