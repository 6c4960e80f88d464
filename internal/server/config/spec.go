package config

import "time"

// ServerConfig is the root configuration for pairlink-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Storage   StorageSection   `koanf:"storage"`
	Security  SecuritySection  `koanf:"security"`
	Session   SessionSection   `koanf:"session"`
	Reconnect ReconnectSection `koanf:"reconnect"`
	Recovery  RecoverySection  `koanf:"recovery"`
	Protocol  ProtocolSection  `koanf:"protocol"`
	Log       LogSection       `koanf:"log"`
	Metrics   MetricsSection   `koanf:"metrics"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	Local LocalConfig `koanf:"local"`
}

// LocalConfig configures the Unix socket listener. Callers on the socket
// skip API key checks; file permissions are the access control.
type LocalConfig struct {
	// SocketPath enables the listener when set.
	SocketPath string `koanf:"socket_path"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// CORSOrigins lists allowed origins. "*" allows any.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimit is the per-key request rate (0 = unlimited).
	RateLimit int `koanf:"rate_limit"`

	// IPRateLimit is the per-client-IP request rate (0 = unlimited).
	IPRateLimit int `koanf:"ip_rate_limit"`

	// Allowlist restricts clients to these IPs or CIDRs (empty = any).
	Allowlist []string `koanf:"allowlist"`

	// APIKeys is the static key set. Empty disables authentication.
	APIKeys []APIKeyConfig `koanf:"api_keys"`
}

// APIKeyConfig is one configured API key. Only the secret's hash is kept.
type APIKeyConfig struct {
	ID         string `koanf:"id"`
	Name       string `koanf:"name"`
	SecretHash string `koanf:"secret_hash"`
	Role       string `koanf:"role"`
}

// StorageSection configures the credential store.
type StorageSection struct {
	// Driver is "badger" or "memory".
	Driver      string        `koanf:"driver"`
	DataDir     string        `koanf:"data_dir"`
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold"`
	SyncWrites  bool          `koanf:"sync_writes"`
}

// SecuritySection configures credential encryption.
type SecuritySection struct {
	// EncryptionKey seals stored credentials when set.
	EncryptionKey string `koanf:"encryption_key"`

	// Cipher is "auto", "aes-gcm" or "chacha20-poly1305".
	Cipher string `koanf:"cipher"`
}

// SessionSection configures lifecycle timing.
type SessionSection struct {
	PairingTimeout     time.Duration `koanf:"pairing_timeout"`
	MaxPairingAttempts int           `koanf:"max_pairing_attempts"`
	StartWait          time.Duration `koanf:"start_wait"`
	MaxWait            time.Duration `koanf:"max_wait"`
	LogoutTimeout      time.Duration `koanf:"logout_timeout"`
	QRSize             int           `koanf:"qr_size"`
}

// ReconnectSection configures the reconnect backoff.
type ReconnectSection struct {
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	Multiplier      float64       `koanf:"multiplier"`
	Jitter          float64       `koanf:"jitter"`
}

// RecoverySection configures session resumption at startup.
type RecoverySection struct {
	Enabled bool `koanf:"enabled"`
	Workers int  `koanf:"workers"`
}

// ProtocolSection selects and configures the protocol driver.
type ProtocolSection struct {
	// Driver is "bridge" or "simulated".
	Driver    string          `koanf:"driver"`
	Bridge    BridgeConfig    `koanf:"bridge"`
	Simulated SimulatedConfig `koanf:"simulated"`
}

// BridgeConfig configures the sidecar websocket driver.
type BridgeConfig struct {
	URL              string        `koanf:"url"`
	CAFile           string        `koanf:"ca_file"`
	Token            string        `koanf:"token"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	PingInterval     time.Duration `koanf:"ping_interval"`
}

// SimulatedConfig configures the in-process driver.
type SimulatedConfig struct {
	// AutoPair confirms pairing codes after this delay (0 = never).
	AutoPair time.Duration `koanf:"auto_pair"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}
