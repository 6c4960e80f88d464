package config

import "time"

// Storage drivers.
const (
	StorageDriverBadger = "badger"
	StorageDriverMemory = "memory"
)

// Default configuration values.
const (
	DefaultHTTPAddr     = "127.0.0.1:5080"
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 90 * time.Second
	DefaultIPRateLimit  = 100

	DefaultStorageDriver = StorageDriverBadger
	DefaultDataDir       = "/var/lib/pairlink-server/data"
	DefaultGCInterval    = 10 * time.Minute
	DefaultGCThreshold   = 0.5
	DefaultCipher        = "auto"

	DefaultPairingTimeout     = 15 * time.Second
	DefaultMaxPairingAttempts = 5
	DefaultStartWait          = 15 * time.Second
	DefaultMaxWait            = 60 * time.Second
	DefaultLogoutTimeout      = 5 * time.Second
	DefaultQRSize             = 256

	DefaultReconnectInitial    = 2 * time.Second
	DefaultReconnectMax        = 60 * time.Second
	DefaultReconnectMultiplier = 2.0

	DefaultRecoveryWorkers = 8

	DefaultProtocolDriver   = "bridge"
	DefaultBridgeURL        = "ws://127.0.0.1:5090/connect"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 20 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsPath = "/metrics"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:         DefaultHTTPAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				IPRateLimit:  DefaultIPRateLimit,
			},
		},
		Storage: StorageSection{
			Driver:      DefaultStorageDriver,
			DataDir:     DefaultDataDir,
			GCInterval:  DefaultGCInterval,
			GCThreshold: DefaultGCThreshold,
			SyncWrites:  true,
		},
		Security: SecuritySection{
			Cipher: DefaultCipher,
		},
		Session: SessionSection{
			PairingTimeout:     DefaultPairingTimeout,
			MaxPairingAttempts: DefaultMaxPairingAttempts,
			StartWait:          DefaultStartWait,
			MaxWait:            DefaultMaxWait,
			LogoutTimeout:      DefaultLogoutTimeout,
			QRSize:             DefaultQRSize,
		},
		Reconnect: ReconnectSection{
			InitialInterval: DefaultReconnectInitial,
			MaxInterval:     DefaultReconnectMax,
			Multiplier:      DefaultReconnectMultiplier,
		},
		Recovery: RecoverySection{
			Enabled: true,
			Workers: DefaultRecoveryWorkers,
		},
		Protocol: ProtocolSection{
			Driver: DefaultProtocolDriver,
			Bridge: BridgeConfig{
				URL:              DefaultBridgeURL,
				HandshakeTimeout: DefaultHandshakeTimeout,
				PingInterval:     DefaultPingInterval,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsSection{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}
