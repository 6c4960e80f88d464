package service

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectConfig configures the delay between reconnect attempts.
type ReconnectConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// Jitter is the randomization factor in [0, 1). Zero gives exact delays.
	Jitter float64
}

// DefaultReconnectConfig returns 2s doubling up to 60s without jitter.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialInterval: 2 * time.Second,
		MaxInterval:     60 * time.Second,
		Multiplier:      2,
	}
}

// ReconnectPolicy yields successive reconnect delays. Not safe for
// concurrent use; each runner owns one.
type ReconnectPolicy struct {
	b *backoff.ExponentialBackOff
}

// NewReconnectPolicy creates a policy from cfg. Zero fields take defaults.
func NewReconnectPolicy(cfg ReconnectConfig) *ReconnectPolicy {
	def := DefaultReconnectConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = cfg.Jitter
	// Never give up; the session stays in RECONNECTING until told otherwise.
	b.MaxElapsedTime = 0
	b.Reset()
	return &ReconnectPolicy{b: b}
}

// Next returns the delay before the next attempt.
func (p *ReconnectPolicy) Next() time.Duration {
	d := p.b.NextBackOff()
	if d == backoff.Stop {
		return p.b.MaxInterval
	}
	return d
}

// Reset starts the sequence over. Called once a connection opens.
func (p *ReconnectPolicy) Reset() {
	p.b.Reset()
}
