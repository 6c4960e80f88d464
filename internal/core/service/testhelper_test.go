package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/protocol/simulated"
	"github.com/yndnr/pairlink-go/internal/storage/memory"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// fakeClock is a wall clock that tests can push forward.
type fakeClock struct {
	offset atomic.Int64
}

func (c *fakeClock) Now() time.Time {
	return time.Now().Add(time.Duration(c.offset.Load()))
}

func (c *fakeClock) Advance(d time.Duration) {
	c.offset.Add(int64(d))
}

type stubRenderer struct{}

func (stubRenderer) Render(code string) (string, error) {
	return "data:image/png;base64," + code, nil
}

// countingRecorder tallies lifecycle observations.
type countingRecorder struct {
	mu          sync.Mutex
	transitions map[domain.State]int
	pairings    int
	reconnects  []time.Duration
	credErrors  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		transitions: make(map[domain.State]int),
		credErrors:  make(map[string]int),
	}
}

func (r *countingRecorder) Transition(_, to domain.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[to]++
}

func (r *countingRecorder) PairingIssued() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairings++
}

func (r *countingRecorder) ReconnectScheduled(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects = append(r.reconnects, d)
}

func (r *countingRecorder) CredentialOp(op string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credErrors[op]++
}

func (r *countingRecorder) Pairings() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pairings
}

func (r *countingRecorder) Reconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reconnects)
}

type testEnv struct {
	t        *testing.T
	manager  *Manager
	network  *simulated.Network
	store    *memory.CredentialStore
	recorder *countingRecorder
	clock    *fakeClock
}

func testConfig() ManagerConfig {
	return ManagerConfig{
		PairingTimeout:     time.Second,
		MaxPairingAttempts: 3,
		StartWait:          time.Second,
		LogoutTimeout:      200 * time.Millisecond,
		Reconnect: ReconnectConfig{
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

func newTestEnv(t *testing.T, cfg ManagerConfig, opts ...simulated.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		t:        t,
		network:  simulated.NewNetwork(opts...),
		store:    memory.NewCredentialStore(),
		recorder: newCountingRecorder(),
		clock:    &fakeClock{},
	}
	env.manager = env.newManager(cfg)
	return env
}

// newManager builds another manager over the same network and store, as a
// restarted process would.
func (e *testEnv) newManager(cfg ManagerConfig) *Manager {
	e.t.Helper()
	m, err := NewManager(cfg, Dependencies{
		Store:    e.store,
		Dialer:   e.network,
		Renderer: stubRenderer{},
		Recorder: e.recorder,
		Logger:   logger.Discard(),
	})
	require.NoError(e.t, err)
	m.now = e.clock.Now
	e.t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

// seedPaired stores registered credentials so name connects without pairing.
func (e *testEnv) seedPaired(name string) {
	e.t.Helper()
	creds, err := domain.NewCredentials()
	require.NoError(e.t, err)
	creds.Registered = true
	creds.Identity = &domain.Identity{ID: name + "@s.whatsapp.net", Name: name}
	require.NoError(e.t, e.store.Save(context.Background(), name, creds))
}

func (e *testEnv) waitState(name string, state domain.State) *domain.Session {
	e.t.Helper()
	return waitStateOn(e.t, e.manager, name, state)
}

func waitStateOn(t *testing.T, m *Manager, name string, state domain.State) *domain.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s, err := m.WaitState(ctx, name, state)
	require.NoError(t, err)
	require.Equal(t, state, s.State, "last error: %+v", s.LastError)
	return s
}

// waitGone waits until name is no longer registered.
func (e *testEnv) waitGone(name string) {
	e.t.Helper()
	require.Eventually(e.t, func() bool {
		_, err := e.manager.Status(context.Background(), name)
		return domain.IsDomainError(err, domain.ErrSessionNotFound.Code)
	}, 3*time.Second, 5*time.Millisecond)
}
