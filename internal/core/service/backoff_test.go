package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicy_DefaultSequence(t *testing.T) {
	p := NewReconnectPolicy(DefaultReconnectConfig())

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, p.Next(), "attempt %d", i+1)
	}
}

func TestReconnectPolicy_Reset(t *testing.T) {
	p := NewReconnectPolicy(DefaultReconnectConfig())
	p.Next()
	p.Next()

	p.Reset()
	assert.Equal(t, 2*time.Second, p.Next())
}

func TestReconnectPolicy_ZeroConfigTakesDefaults(t *testing.T) {
	p := NewReconnectPolicy(ReconnectConfig{})
	assert.Equal(t, 2*time.Second, p.Next())
	assert.Equal(t, 4*time.Second, p.Next())
}

func TestReconnectPolicy_JitterStaysInRange(t *testing.T) {
	p := NewReconnectPolicy(ReconnectConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Jitter:          0.5,
	})

	d := p.Next()
	assert.GreaterOrEqual(t, d, 50*time.Millisecond)
	assert.LessOrEqual(t, d, 150*time.Millisecond)
}

func TestReconnectPolicy_NeverStops(t *testing.T) {
	p := NewReconnectPolicy(ReconnectConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     4 * time.Millisecond,
		Multiplier:      2,
	})
	for i := 0; i < 100; i++ {
		d := p.Next()
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, 4*time.Millisecond)
	}
}
