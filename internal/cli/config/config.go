package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// CLIConfig is the configuration for pairlink-cli.
type CLIConfig struct {
	DefaultServer string `yaml:"default_server"`
	DefaultOutput string `yaml:"default_output"` // table, json, yaml

	Connections map[string]ConnectionConfig `yaml:"connections"`

	// CurrentConnection names the profile used when no --server is given.
	CurrentConnection string `yaml:"current_connection,omitempty"`
}

// ConnectionConfig is a saved connection profile.
type ConnectionConfig struct {
	Server   string `yaml:"server"`
	APIKeyID string `yaml:"api_key_id,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultServer: "http://localhost:5080",
		DefaultOutput: "table",
		Connections:   make(map[string]ConnectionConfig),
	}
}

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".pairlink", "cli.yaml")
}

// Load reads the configuration at path. A missing file yields Default.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Connections == nil {
		cfg.Connections = make(map[string]ConnectionConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path. The file holds API key secrets, so it is
// created owner-only.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Validate checks profile references and formats.
func (c *CLIConfig) Validate() error {
	switch c.DefaultOutput {
	case "", "table", "json", "yaml":
	default:
		return fmt.Errorf("default_output: unknown format %q", c.DefaultOutput)
	}
	for name, conn := range c.Connections {
		if conn.Server == "" {
			return fmt.Errorf("connections.%s: server is required", name)
		}
		if (conn.APIKeyID == "") != (conn.APIKey == "") {
			return fmt.Errorf("connections.%s: api_key_id and api_key must be set together", name)
		}
	}
	if c.CurrentConnection != "" {
		if _, ok := c.Connections[c.CurrentConnection]; !ok {
			return fmt.Errorf("current_connection: unknown profile %q", c.CurrentConnection)
		}
	}
	return nil
}

// Current returns the active profile, if any.
func (c *CLIConfig) Current() (ConnectionConfig, bool) {
	if c.CurrentConnection == "" {
		return ConnectionConfig{}, false
	}
	conn, ok := c.Connections[c.CurrentConnection]
	return conn, ok
}

// Names returns the profile names in sorted order.
func (c *CLIConfig) Names() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
