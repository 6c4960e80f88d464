package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Security.EncryptionKey != "" {
		sanitized.Security.EncryptionKey = maskSecret(sanitized.Security.EncryptionKey)
	}
	if sanitized.Protocol.Bridge.Token != "" {
		sanitized.Protocol.Bridge.Token = maskSecret(sanitized.Protocol.Bridge.Token)
	}

	// The slice is shared with cfg; copy before masking.
	if len(cfg.Server.HTTP.APIKeys) > 0 {
		keys := make([]APIKeyConfig, len(cfg.Server.HTTP.APIKeys))
		copy(keys, cfg.Server.HTTP.APIKeys)
		for i := range keys {
			keys[i].SecretHash = maskSecret(keys[i].SecretHash)
		}
		sanitized.Server.HTTP.APIKeys = keys
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
