package connection

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yndnr/pairlink-go/internal/cli/config"
)

// Connection is the resolved target for a command.
type Connection struct {
	Name     string
	Server   string
	APIKeyID string
	APIKey   string
}

// Manager resolves connections from flags and saved profiles.
type Manager struct {
	cfg  *config.CLIConfig
	path string
}

// NewManager creates a manager over cfg, saved back to path.
func NewManager(cfg *config.CLIConfig, path string) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Manager{cfg: cfg, path: path}
}

// Config returns the loaded CLI configuration.
func (m *Manager) Config() *config.CLIConfig {
	return m.cfg
}

// Resolve picks the connection for a command. Explicit flag values win;
// the current profile fills whatever they leave empty.
func (m *Manager) Resolve(server, apiKeyID, apiKey string) *Connection {
	conn := &Connection{Server: server, APIKeyID: apiKeyID, APIKey: apiKey}
	if cur, ok := m.cfg.Current(); ok {
		conn.Name = m.cfg.CurrentConnection
		if conn.Server == "" {
			conn.Server = cur.Server
		}
		if conn.APIKeyID == "" && conn.APIKey == "" {
			conn.APIKeyID, conn.APIKey = cur.APIKeyID, cur.APIKey
		}
	}
	if conn.Server == "" {
		conn.Server = m.cfg.DefaultServer
	}
	return conn
}

// Connect saves conn as a named profile and makes it current.
func (m *Manager) Connect(conn *Connection) error {
	if conn.Name == "" {
		return fmt.Errorf("connection name required")
	}
	if err := validateServer(conn.Server); err != nil {
		return err
	}
	m.cfg.Connections[conn.Name] = config.ConnectionConfig{
		Server:   conn.Server,
		APIKeyID: conn.APIKeyID,
		APIKey:   conn.APIKey,
	}
	m.cfg.CurrentConnection = conn.Name
	return config.Save(m.cfg, m.path)
}

// Use switches the current profile.
func (m *Manager) Use(name string) error {
	if _, ok := m.cfg.Connections[name]; !ok {
		return fmt.Errorf("unknown connection %q (known: %s)", name, strings.Join(m.cfg.Names(), ", "))
	}
	m.cfg.CurrentConnection = name
	return config.Save(m.cfg, m.path)
}

// Disconnect clears the current profile. Saved profiles are kept.
func (m *Manager) Disconnect() error {
	m.cfg.CurrentConnection = ""
	return config.Save(m.cfg, m.path)
}

// Current returns the current profile name, or "".
func (m *Manager) Current() string {
	return m.cfg.CurrentConnection
}

func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server address required")
	}
	if path, ok := strings.CutPrefix(server, UnixScheme); ok {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("unix socket path must be absolute: %q", server)
		}
		return nil
	}
	raw := server
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid server address %q", server)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}
