package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/protocol/simulated"
	"github.com/yndnr/pairlink-go/internal/storage/memory"
)

func TestNewManager_RequiresDependencies(t *testing.T) {
	_, err := NewManager(testConfig(), Dependencies{})
	assert.ErrorIs(t, err, domain.ErrMissingArgument)

	_, err = NewManager(testConfig(), Dependencies{Store: memory.NewCredentialStore()})
	assert.ErrorIs(t, err, domain.ErrMissingArgument)
}

func TestNewManager_FillsDefaults(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})
	cfg := env.manager.Config()
	def := DefaultManagerConfig()

	assert.Equal(t, def.PairingTimeout, cfg.PairingTimeout)
	assert.Equal(t, def.MaxPairingAttempts, cfg.MaxPairingAttempts)
	assert.Equal(t, def.LogoutTimeout, cfg.LogoutTimeout)
}

func TestManager_StartRejectsInvalidName(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for _, name := range []string{"", "has space", "a/b"} {
		_, err := env.manager.Start(context.Background(), name)
		assert.ErrorIs(t, err, domain.ErrSessionValidation, "name %q", name)
	}
	assert.Empty(t, env.manager.List(context.Background()))
	assert.Equal(t, 0, env.network.Dials(""))
}

func TestManager_StartStampsManagerClock(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.clock.Advance(48 * time.Hour)
	before := env.clock.Now()

	s, err := env.manager.Start(context.Background(), "vendas")
	require.NoError(t, err)

	assert.False(t, s.CreatedAt.Before(before), "CreatedAt %v is behind the manager clock %v", s.CreatedAt, before)
	assert.False(t, s.LastTransitionAt.Before(s.CreatedAt))

	s = env.waitState("vendas", domain.StateAwaitingScan)
	assert.False(t, s.CreatedAt.Before(before))
	assert.False(t, s.LastTransitionAt.Before(s.CreatedAt), "transition %v precedes creation %v", s.LastTransitionAt, s.CreatedAt)
}

func TestManager_PairingScenario(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	resp, err := env.manager.StartSession(ctx, &StartSessionRequest{Name: "vendas", Wait: 2 * time.Second})
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.True(t, resp.Ready)
	require.Equal(t, domain.StateAwaitingScan, resp.Session.State)
	require.NotNil(t, resp.Session.Pairing)
	assert.NotEmpty(t, resp.Session.Pairing.Code)
	assert.Contains(t, resp.Session.Pairing.Image, "data:image/png;base64,")
	assert.Equal(t, 1, resp.Session.PairingAttempt)

	require.NoError(t, env.network.ConfirmPairing("vendas", domain.Identity{ID: "5511999999999@s.whatsapp.net", Name: "Vendas"}))

	s := env.waitState("vendas", domain.StateConnected)
	require.NotNil(t, s.Identity)
	assert.Equal(t, "5511999999999@s.whatsapp.net", s.Identity.ID)
	assert.Nil(t, s.Pairing)
	assert.Equal(t, 0, s.ReconnectAttempt)
	assert.Equal(t, 0, s.PairingAttempt)

	// Pairing hands out credentials, then the service asks for a restart.
	assert.Equal(t, 2, env.network.Dials("vendas"))
	stored, err := env.store.Load(ctx, "vendas")
	require.NoError(t, err)
	assert.True(t, stored.Registered)
	require.NotNil(t, stored.Identity)
	assert.Equal(t, "5511999999999@s.whatsapp.net", stored.Identity.ID)
}

func TestManager_StartWhileConnectedOpensNothing(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedPaired("vendas")
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	first := env.waitState("vendas", domain.StateConnected)
	dials := env.network.Dials("vendas")

	resp, err := env.manager.StartSession(ctx, &StartSessionRequest{Name: "vendas"})
	require.NoError(t, err)
	assert.False(t, resp.Created)
	assert.True(t, resp.Ready)
	assert.Equal(t, domain.StateConnected, resp.Session.State)
	assert.Equal(t, first.AttemptID, resp.Session.AttemptID)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, dials, env.network.Dials("vendas"))
	assert.Equal(t, 1, env.network.ActiveCount())
}

func TestManager_ConcurrentStartSingleConnection(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		attempts  = make(map[string]int)
		startErrs []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := env.manager.StartSession(ctx, &StartSessionRequest{Name: "vendas", Wait: 2 * time.Second})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				startErrs = append(startErrs, err)
				return
			}
			if resp.Created {
				created++
			}
			attempts[resp.Session.AttemptID]++
		}()
	}
	wg.Wait()

	require.Empty(t, startErrs)
	assert.Equal(t, 1, created)
	assert.Len(t, attempts, 1)

	s := env.waitState("vendas", domain.StateAwaitingScan)
	assert.NotNil(t, s.Pairing)
	assert.Equal(t, 1, env.network.Dials("vendas"))
	assert.Equal(t, 1, env.network.ActiveCount())
}

func TestManager_ExpiredArtifactIsRegenerated(t *testing.T) {
	cfg := testConfig()
	cfg.PairingTimeout = time.Hour
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	first := env.waitState("vendas", domain.StateAwaitingScan)
	require.NotNil(t, first.Pairing)

	env.clock.Advance(2 * time.Hour)

	stale, err := env.manager.Status(ctx, "vendas")
	require.NoError(t, err)
	assert.Nil(t, stale.Pairing, "expired artifact must not be returned")

	require.Eventually(t, func() bool {
		s, err := env.manager.Status(ctx, "vendas")
		return err == nil && s.Pairing != nil && s.Pairing.Code != first.Pairing.Code
	}, 3*time.Second, 5*time.Millisecond)

	fresh, err := env.manager.Status(ctx, "vendas")
	require.NoError(t, err)
	assert.True(t, fresh.Pairing.ExpiresAt.After(env.clock.Now()))
	assert.Equal(t, 2, fresh.PairingAttempt)
	assert.Equal(t, 2, env.network.Dials("vendas"))
	assert.Equal(t, 1, env.network.ActiveCount())
}

func TestManager_ListHidesExpiredArtifacts(t *testing.T) {
	cfg := testConfig()
	cfg.PairingTimeout = time.Hour
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateAwaitingScan)

	env.clock.Advance(2 * time.Hour)
	for _, s := range env.manager.List(ctx) {
		if s.State == domain.StateAwaitingScan {
			assert.Nil(t, s.Pairing)
		}
	}
}

func TestManager_PairingGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.PairingTimeout = 30 * time.Millisecond
	cfg.MaxPairingAttempts = 2
	env := newTestEnv(t, cfg)

	_, err := env.manager.Start(context.Background(), "vendas")
	require.NoError(t, err)

	env.waitGone("vendas")
	assert.Equal(t, 2, env.network.Dials("vendas"))
	assert.Equal(t, 2, env.recorder.Pairings())
	assert.False(t, env.store.Has("vendas"), "unpaired credentials are purged")
	assert.Equal(t, 0, env.network.ActiveCount())
}

func TestManager_TransientDialFailuresAreRetried(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedPaired("vendas")
	env.network.FailDials("vendas", 3)

	_, err := env.manager.Start(context.Background(), "vendas")
	require.NoError(t, err)

	s := env.waitState("vendas", domain.StateConnected)
	assert.Equal(t, 4, env.network.Dials("vendas"))
	assert.Equal(t, 1, env.network.Opens("vendas"))
	assert.Equal(t, 3, env.recorder.Reconnects())
	assert.Equal(t, 0, s.ReconnectAttempt)
	assert.Nil(t, s.LastError)
}

func TestManager_TransientDropsReopen(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedPaired("vendas")

	_, err := env.manager.Start(context.Background(), "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateConnected)

	const drops = 3
	for i := 1; i <= drops; i++ {
		require.NoError(t, env.network.Drop("vendas", domain.CloseConnectionLost))
		want := i + 1
		require.Eventually(t, func() bool {
			return env.network.Opens("vendas") == want
		}, 3*time.Second, 2*time.Millisecond)
	}

	s := env.waitState("vendas", domain.StateConnected)
	assert.Equal(t, drops+1, env.network.Opens("vendas"))
	assert.True(t, env.store.Has("vendas"), "transient closes keep credentials")
	assert.Equal(t, 1, env.network.ActiveCount())
	assert.NotNil(t, s.Identity)
}

func TestManager_RemoteLogoutPurges(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedPaired("vendas")

	_, err := env.manager.Start(context.Background(), "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateConnected)

	require.NoError(t, env.network.Drop("vendas", domain.CloseLoggedOut))

	env.waitGone("vendas")
	assert.False(t, env.store.Has("vendas"))
	assert.Equal(t, 1, env.network.Opens("vendas"))
}

func TestManager_ReplacedStopsWithError(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedPaired("vendas")
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateConnected)

	require.NoError(t, env.network.Drop("vendas", domain.CloseReplaced))

	s := env.waitState("vendas", domain.StateError)
	require.NotNil(t, s.LastError)
	assert.Equal(t, domain.ErrSessionReplaced.Code, s.LastError.Code)
	assert.True(t, env.store.Has("vendas"), "replaced sessions keep credentials")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, env.network.Dials("vendas"), "no automatic retry")

	// A new start replaces the failed entry.
	resp, err := env.manager.StartSession(ctx, &StartSessionRequest{Name: "vendas", Wait: 2 * time.Second})
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, domain.StateConnected, resp.Session.State)
}

func TestManager_CredentialLoadErrorIsFatal(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.store.FailOn(memory.OpLoad, errors.New("disk unavailable"))

	_, err := env.manager.Start(context.Background(), "vendas")
	require.NoError(t, err)

	s := env.waitState("vendas", domain.StateError)
	require.NotNil(t, s.LastError)
	assert.Equal(t, domain.ErrCredentialUnavailable.Code, s.LastError.Code)
	assert.Equal(t, 0, env.network.Dials("vendas"))
}

func TestManager_LogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedPaired("vendas")
	ctx := context.Background()

	resp, err := env.manager.Logout(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, resp.Existed)

	_, err = env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateConnected)

	resp, err = env.manager.Logout(ctx, "vendas")
	require.NoError(t, err)
	assert.True(t, resp.Existed)
	assert.Equal(t, 1, env.network.Logouts("vendas"))

	resp, err = env.manager.Logout(ctx, "vendas")
	require.NoError(t, err)
	assert.False(t, resp.Existed)

	assert.Empty(t, env.manager.List(ctx))
	assert.False(t, env.store.Has("vendas"))
	assert.Equal(t, 0, env.network.ActiveCount())
}

func TestManager_LogoutDuringSlowDial(t *testing.T) {
	cfg := testConfig()
	env := newTestEnv(t, cfg, simulated.WithDialDelay(5*time.Second))
	env.seedPaired("vendas")
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateConnecting)

	start := time.Now()
	resp, err := env.manager.Logout(ctx, "vendas")
	require.NoError(t, err)
	assert.True(t, resp.Existed)
	assert.Less(t, time.Since(start), 2*cfg.LogoutTimeout, "logout waited for the dial")

	env.waitGone("vendas")
	assert.False(t, env.store.Has("vendas"))
	assert.Equal(t, 1, env.network.Dials("vendas"))
	assert.Equal(t, 0, env.network.Opens("vendas"), "no connection after logout")
	assert.Equal(t, 0, env.network.ActiveCount())

	resp, err = env.manager.Logout(ctx, "vendas")
	require.NoError(t, err)
	assert.False(t, resp.Existed)
}

func TestManager_LogoutCancelsPendingReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.InitialInterval = 200 * time.Millisecond
	cfg.Reconnect.MaxInterval = 200 * time.Millisecond
	env := newTestEnv(t, cfg)
	env.seedPaired("vendas")
	env.network.FailDials("vendas", 100)
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateReconnecting)
	require.Eventually(t, func() bool { return env.manager.PendingReconnects() == 1 },
		time.Second, 2*time.Millisecond)

	resp, err := env.manager.Logout(ctx, "vendas")
	require.NoError(t, err)
	assert.True(t, resp.Existed)
	assert.Equal(t, 0, env.manager.PendingReconnects())

	dials := env.network.Dials("vendas")
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, dials, env.network.Dials("vendas"), "cancelled timer must not redial")
	assert.Empty(t, env.manager.List(ctx))
}

func TestManager_WaitReportsRemovalAsDisconnected(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateAwaitingScan)

	result := make(chan *domain.Session, 1)
	go func() {
		wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		s, _ := env.manager.WaitState(wctx, "vendas", domain.StateConnected)
		result <- s
	}()
	time.Sleep(20 * time.Millisecond)

	_, err = env.manager.Logout(ctx, "vendas")
	require.NoError(t, err)

	select {
	case s := <-result:
		require.NotNil(t, s)
		assert.Equal(t, domain.StateDisconnected, s.State)
	case <-time.After(3 * time.Second):
		t.Fatal("wait did not observe the logout")
	}
}

func TestManager_WaitTimeoutReturnsSnapshot(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateAwaitingScan)

	wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	s, err := env.manager.WaitState(wctx, "vendas", domain.StateConnected)
	assert.ErrorIs(t, err, domain.ErrWaitTimeout)
	require.NotNil(t, s)
	assert.Equal(t, domain.StateAwaitingScan, s.State)
}

func TestManager_WaitChange(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	s := env.waitState("vendas", domain.StateAwaitingScan)

	go func() {
		_ = env.network.ConfirmPairing("vendas", domain.Identity{ID: "vendas@s.whatsapp.net"})
	}()

	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	next, err := env.manager.WaitChange(wctx, "vendas", s.Version)
	require.NoError(t, err)
	assert.Greater(t, next.Version, s.Version)
}

func TestManager_StatusNotFound(t *testing.T) {
	env := newTestEnv(t, testConfig())

	_, err := env.manager.Status(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = env.manager.Wait(context.Background(), "ghost", func(*domain.Session) bool { return true })
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_ListSortedByName(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	for _, name := range []string{"suporte", "vendas", "financeiro"} {
		_, err := env.manager.Start(ctx, name)
		require.NoError(t, err)
	}

	list := env.manager.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "financeiro", list[0].Name)
	assert.Equal(t, "suporte", list[1].Name)
	assert.Equal(t, "vendas", list[2].Name)

	counts := env.manager.CountByState()
	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 3, total)
}

func TestManager_SendText(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedPaired("vendas")
	ctx := context.Background()

	_, err := env.manager.SendText(ctx, &SendTextRequest{Name: "vendas", To: "5511", Text: "oi"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateConnected)

	resp, err := env.manager.SendText(ctx, &SendTextRequest{Name: "vendas", To: "5511988887777", Text: "pedido confirmado"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.MessageID)

	sent := env.network.Sent("vendas")
	require.Len(t, sent, 1)
	assert.Equal(t, "5511988887777@s.whatsapp.net", sent[0].To)
	assert.Equal(t, "pedido confirmado", sent[0].Text)

	_, err = env.manager.SendText(ctx, &SendTextRequest{Name: "vendas", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrMissingArgument)
	_, err = env.manager.SendText(ctx, &SendTextRequest{Name: "vendas", To: "5511"})
	assert.ErrorIs(t, err, domain.ErrMissingArgument)
}

func TestManager_SendTextRequiresConnection(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateAwaitingScan)

	_, err = env.manager.SendText(ctx, &SendTextRequest{Name: "vendas", To: "5511", Text: "oi"})
	assert.ErrorIs(t, err, domain.ErrSessionNotConnected)
}

func TestManager_CloseKeepsCredentials(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedPaired("vendas")
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateConnected)

	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	require.NoError(t, env.manager.Healthy())
	require.NoError(t, env.manager.Close(cctx))
	require.NoError(t, env.manager.Close(cctx), "close is idempotent")
	assert.ErrorIs(t, env.manager.Healthy(), domain.ErrManagerClosed)

	assert.Equal(t, 0, env.network.ActiveCount())
	assert.True(t, env.store.Has("vendas"))
	assert.Equal(t, 0, env.network.Logouts("vendas"))

	_, err = env.manager.Start(ctx, "vendas")
	assert.ErrorIs(t, err, domain.ErrManagerClosed)
}

func TestManager_CloseCancelsReconnects(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.InitialInterval = 100 * time.Millisecond
	cfg.Reconnect.MaxInterval = 100 * time.Millisecond
	env := newTestEnv(t, cfg)
	env.seedPaired("vendas")
	env.network.FailDials("vendas", 100)
	ctx := context.Background()

	_, err := env.manager.Start(ctx, "vendas")
	require.NoError(t, err)
	env.waitState("vendas", domain.StateReconnecting)

	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	require.NoError(t, env.manager.Close(cctx))
	assert.Equal(t, 0, env.manager.PendingReconnects())

	dials := env.network.Dials("vendas")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, dials, env.network.Dials("vendas"))
}
