package config

import (
	"fmt"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
	"github.com/yndnr/pairlink-go/internal/protocol/bridge"
	"github.com/yndnr/pairlink-go/internal/storage"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// ManagerConfig returns the lifecycle settings.
func (c *ServerConfig) ManagerConfig() service.ManagerConfig {
	return service.ManagerConfig{
		PairingTimeout:     c.Session.PairingTimeout,
		MaxPairingAttempts: c.Session.MaxPairingAttempts,
		StartWait:          c.Session.StartWait,
		LogoutTimeout:      c.Session.LogoutTimeout,
		Reconnect: service.ReconnectConfig{
			InitialInterval: c.Reconnect.InitialInterval,
			MaxInterval:     c.Reconnect.MaxInterval,
			Multiplier:      c.Reconnect.Multiplier,
			Jitter:          c.Reconnect.Jitter,
		},
	}
}

// AuthConfig returns the API key set and limits.
func (c *ServerConfig) AuthConfig() (service.AuthServiceConfig, error) {
	keys := make([]*domain.APIKey, 0, len(c.Server.HTTP.APIKeys))
	for _, k := range c.Server.HTTP.APIKeys {
		if !domain.IsValidRole(k.Role) {
			return service.AuthServiceConfig{}, fmt.Errorf("api key %s: invalid role %q", k.ID, k.Role)
		}
		keys = append(keys, &domain.APIKey{
			ID:         k.ID,
			Name:       k.Name,
			SecretHash: k.SecretHash,
			Role:       domain.Role(k.Role),
		})
	}
	return service.AuthServiceConfig{
		Keys:            keys,
		RateLimit:       c.Server.HTTP.RateLimit,
		GlobalAllowlist: c.Server.HTTP.Allowlist,
	}, nil
}

// StorageConfig returns the Badger settings, including the cipher built
// from the encryption key.
func (c *ServerConfig) StorageConfig(log logger.Logger) (storage.Config, error) {
	cfg := storage.DefaultConfig(c.Storage.DataDir)
	cfg.GCInterval = c.Storage.GCInterval
	cfg.GCThreshold = c.Storage.GCThreshold
	cfg.SyncWrites = c.Storage.SyncWrites
	cfg.Logger = log

	cipher, err := storage.NewCipher(c.Security.EncryptionKey, c.Security.Cipher)
	if err != nil {
		return storage.Config{}, err
	}
	cfg.Cipher = cipher
	return cfg, nil
}

// BridgeConfig returns the sidecar driver settings.
func (c *ServerConfig) BridgeConfig(log logger.Logger) bridge.Config {
	b := c.Protocol.Bridge
	return bridge.Config{
		URL:              b.URL,
		CAFile:           b.CAFile,
		Token:            b.Token,
		HandshakeTimeout: b.HandshakeTimeout,
		PingInterval:     b.PingInterval,
		Logger:           log,
	}
}

// LoggerConfig returns the logger settings.
func (c *ServerConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
	}
}
