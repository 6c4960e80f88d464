package storage

import (
	"time"

	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
	"github.com/yndnr/pairlink-go/pkg/crypto/adaptive"
)

// Config configures the Badger credential store.
type Config struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// GCInterval is the interval between value-log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the discard ratio that makes a value-log file
	// eligible for rewrite.
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 64MB
	ValueLogFileSize int64

	// SyncWrites fsyncs every write. Credentials change rarely, so this
	// defaults to true.
	SyncWrites bool

	// Cipher seals records at rest. Nil stores plaintext JSON.
	Cipher adaptive.Cipher

	Logger logger.Logger
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        16 << 20,
		ValueLogFileSize: 64 << 20,
		SyncWrites:       true,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig(c.Dir)
	if c.GCInterval <= 0 {
		c.GCInterval = def.GCInterval
	}
	if c.GCThreshold <= 0 || c.GCThreshold >= 1 {
		c.GCThreshold = def.GCThreshold
	}
	if c.CacheSize <= 0 {
		c.CacheSize = def.CacheSize
	}
	if c.ValueLogFileSize <= 0 {
		c.ValueLogFileSize = def.ValueLogFileSize
	}
	if c.Logger == nil {
		c.Logger = logger.Default()
	}
}

// Stats contains database statistics.
type Stats struct {
	// Keys is the number of stored credential records.
	Keys int

	// LSMSize is the LSM tree size in bytes.
	LSMSize int64

	// ValueLogSize is the value log size in bytes.
	ValueLogSize int64

	// LastGC is the time of the last GC run, zero if none ran.
	LastGC time.Time

	// GCRewrites counts value-log files rewritten by GC.
	GCRewrites uint64
}
