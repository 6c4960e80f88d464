package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/protocol"
	"github.com/yndnr/pairlink-go/pkg/crypto/adaptive"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	checks := []func(*ServerConfig) error{
		verifyServer,
		verifyStorage,
		verifySecurity,
		verifySession,
		verifyReconnect,
		verifyProtocol,
		verifyLog,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func verifyServer(cfg *ServerConfig) error {
	h := &cfg.Server.HTTP
	if h.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	for _, f := range []string{h.TLSCertFile, h.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.http: %w", err)
		}
	}
	if h.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	if h.IPRateLimit < 0 {
		return errors.New("server.http.ip_rate_limit must not be negative")
	}
	if p := cfg.Server.Local.SocketPath; p != "" {
		if !filepath.IsAbs(p) {
			return errors.New("server.local.socket_path must be absolute")
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return errors.New("cannot create socket directory: " + err.Error())
		}
	}

	seen := make(map[string]bool, len(h.APIKeys))
	for i, k := range h.APIKeys {
		if !strings.HasPrefix(k.ID, domain.APIKeyIDPrefix) {
			return fmt.Errorf("server.http.api_keys[%d].id must start with %q", i, domain.APIKeyIDPrefix)
		}
		if seen[k.ID] {
			return fmt.Errorf("server.http.api_keys[%d]: duplicate id %s", i, k.ID)
		}
		seen[k.ID] = true
		if len(k.SecretHash) != 64 {
			return fmt.Errorf("server.http.api_keys[%d].secret_hash must be a hex SHA-256", i)
		}
		if !domain.IsValidRole(k.Role) {
			return fmt.Errorf("server.http.api_keys[%d].role %q is invalid", i, k.Role)
		}
	}
	return nil
}

func verifyStorage(cfg *ServerConfig) error {
	s := &cfg.Storage
	switch s.Driver {
	case StorageDriverMemory:
		return nil
	case StorageDriverBadger:
	default:
		return fmt.Errorf("storage.driver %q is invalid", s.Driver)
	}

	if s.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(s.DataDir, 0o750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	if s.GCThreshold <= 0 || s.GCThreshold >= 1 {
		return errors.New("storage.gc_threshold must be between 0 and 1")
	}
	return nil
}

func verifySecurity(cfg *ServerConfig) error {
	if _, err := adaptive.ParseCipherType(cfg.Security.Cipher); err != nil {
		return fmt.Errorf("security.cipher: %w", err)
	}
	if k := cfg.Security.EncryptionKey; k != "" && len(k) < adaptive.MinSecretSize {
		return fmt.Errorf("security.encryption_key must be at least %d bytes", adaptive.MinSecretSize)
	}
	return nil
}

func verifySession(cfg *ServerConfig) error {
	s := &cfg.Session
	if s.PairingTimeout <= 0 {
		return errors.New("session.pairing_timeout must be positive")
	}
	if s.MaxPairingAttempts < 1 {
		return errors.New("session.max_pairing_attempts must be at least 1")
	}
	if s.StartWait < 0 {
		return errors.New("session.start_wait must not be negative")
	}
	if s.MaxWait < s.StartWait {
		return errors.New("session.max_wait must not be less than start_wait")
	}
	if w := cfg.Server.HTTP.WriteTimeout; w > 0 && w <= s.MaxWait {
		return errors.New("server.http.write_timeout must exceed session.max_wait")
	}
	if s.LogoutTimeout <= 0 {
		return errors.New("session.logout_timeout must be positive")
	}
	if s.QRSize < 64 {
		return errors.New("session.qr_size must be at least 64")
	}
	return nil
}

func verifyReconnect(cfg *ServerConfig) error {
	r := &cfg.Reconnect
	if r.InitialInterval <= 0 {
		return errors.New("reconnect.initial_interval must be positive")
	}
	if r.MaxInterval < r.InitialInterval {
		return errors.New("reconnect.max_interval must not be less than initial_interval")
	}
	if r.Multiplier < 1 {
		return errors.New("reconnect.multiplier must be at least 1")
	}
	if r.Jitter < 0 || r.Jitter >= 1 {
		return errors.New("reconnect.jitter must be in [0, 1)")
	}
	if cfg.Recovery.Workers < 0 {
		return errors.New("recovery.workers must not be negative")
	}
	return nil
}

func verifyProtocol(cfg *ServerConfig) error {
	switch cfg.Protocol.Driver {
	case protocol.DriverBridge:
		u := cfg.Protocol.Bridge.URL
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return errors.New("protocol.bridge.url must be a ws:// or wss:// url")
		}
	case protocol.DriverSimulated:
	default:
		return fmt.Errorf("protocol.driver %q is invalid", cfg.Protocol.Driver)
	}
	return nil
}

func verifyLog(cfg *ServerConfig) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is invalid", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q is invalid", cfg.Log.Format)
	}
	return nil
}
