package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/infra/shutdown"
	"github.com/yndnr/pairlink-go/internal/server/config"
	"github.com/yndnr/pairlink-go/internal/storage"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T, driver string) *config.ServerConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = driver
	cfg.Storage.DataDir = t.TempDir()
	cfg.Protocol.Driver = "simulated"
	cfg.Protocol.Simulated.AutoPair = 50 * time.Millisecond
	cfg.Session.StartWait = 2 * time.Second
	require.NoError(t, config.Verify(cfg))
	return cfg
}

func buildTest(t *testing.T, cfg *config.ServerConfig) *application {
	t.Helper()
	shut := shutdown.NewHandler(5*time.Second, logger.Discard())
	app, err := build(context.Background(), cfg, logger.Discard(), shut)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shut.Shutdown() })
	return app
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    addr: "127.0.0.1:6000"
storage:
  driver: memory
protocol:
  driver: simulated
session:
  pairing_timeout: 20s
`)
	t.Setenv("PAIRLINK_LOG__LEVEL", "debug")

	loader, cfg, err := loadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, loader.FilePath())
	assert.Equal(t, "127.0.0.1:6000", cfg.Server.HTTP.Addr)
	assert.Equal(t, 20*time.Second, cfg.Session.PairingTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched settings keep their defaults.
	assert.Equal(t, config.DefaultMaxPairingAttempts, cfg.Session.MaxPairingAttempts)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
session:
  max_pairing_attempts: 0
`)
	_, _, err := loadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_pairing_attempts")

	_, _, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestApp_Check(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\nprotocol:\n  driver: simulated\n")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"pairlink-server", "--config", path, "--check"}))
	assert.Contains(t, out.String(), "configuration ok (storage memory, protocol simulated")

	out.Reset()
	app = newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"pairlink-server", "--config", path,
		"--set", "server.http.addr=127.0.0.1:7123", "--check"}))
	assert.Contains(t, out.String(), "listen 127.0.0.1:7123")

	assert.Error(t, newApp().Run([]string{"pairlink-server", "--config", path, "--set", "nonsense", "--check"}))
}

func TestBuild_ServesSessions(t *testing.T) {
	app := buildTest(t, testConfig(t, config.StorageDriverMemory))
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sessions", "application/json",
		strings.NewReader(`{"session_name":"vendas","wait_seconds":3}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Data struct {
			Session *domain.Session `json:"session"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.NotNil(t, env.Data.Session)

	// Auto-pairing completes the scan; the session ends up connected.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := app.manager.WaitState(ctx, "vendas", domain.StateConnected)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnected, s.State)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(metrics.Body)
	_ = metrics.Body.Close()
	assert.Contains(t, string(body), `pairlink_sessions{state="CONNECTED"} 1`)
	assert.Contains(t, string(body), "pairlink_session_transitions_total")

	ready, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	_ = ready.Body.Close()
	assert.Equal(t, http.StatusOK, ready.StatusCode)

	// No backup source with memory storage.
	backup, err := http.Get(srv.URL + "/admin/v1/backup")
	require.NoError(t, err)
	_ = backup.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, backup.StatusCode)
}

func TestBuild_BadgerRecoversSessions(t *testing.T) {
	cfg := testConfig(t, config.StorageDriverBadger)
	cfg.Security.EncryptionKey = strings.Repeat("k", 32)

	// First run: pair a session, then shut down with credentials kept.
	shut := shutdown.NewHandler(5*time.Second, logger.Discard())
	app, err := build(context.Background(), cfg, logger.Discard(), shut)
	require.NoError(t, err)
	_, err = app.manager.Start(context.Background(), "suporte")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = app.manager.WaitState(ctx, "suporte", domain.StateConnected)
	require.NoError(t, err)

	srv := httptest.NewServer(app.router)
	resp, err := http.Get(srv.URL + "/admin/v1/backup")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	srv.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, data)
	require.NoError(t, shut.Shutdown())

	// Second run resumes it from storage without pairing.
	app = buildTest(t, cfg)
	s, err := app.manager.WaitState(ctx, "suporte", domain.StateConnected)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnected, s.State)
	assert.Nil(t, s.Pairing)
}

func TestApplication_Reload(t *testing.T) {
	cfg := testConfig(t, config.StorageDriverMemory)
	app := buildTest(t, cfg)
	srv := httptest.NewServer(app.router)
	defer srv.Close()
	defer logger.SetLevel(logger.GetLevel())

	get := func(token string) int {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/sessions", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, get(""))

	key, secret, err := domain.NewAPIKey("ops", domain.RoleReader)
	require.NoError(t, err)
	next := testConfig(t, config.StorageDriverMemory)
	next.Log.Level = "warn"
	next.Server.HTTP.APIKeys = []config.APIKeyConfig{{
		ID: key.ID, Name: key.Name, SecretHash: key.SecretHash, Role: string(key.Role),
	}}
	require.NoError(t, app.reload(next))

	assert.Equal(t, "warn", logger.GetLevel())
	assert.Equal(t, http.StatusUnauthorized, get(""))
	assert.Equal(t, http.StatusOK, get(key.ID+":"+secret))

	next.Server.HTTP.APIKeys[0].Role = "root"
	assert.Error(t, app.reload(next))
}

func TestBuild_LocalRouterSkipsAuth(t *testing.T) {
	key, _, err := domain.NewAPIKey("ops", domain.RoleAdmin)
	require.NoError(t, err)
	cfg := testConfig(t, config.StorageDriverMemory)
	cfg.Server.HTTP.APIKeys = []config.APIKeyConfig{{
		ID: key.ID, Name: key.Name, SecretHash: key.SecretHash, Role: string(key.Role),
	}}
	cfg.Server.Local.SocketPath = filepath.Join(t.TempDir(), "pairlink.sock")
	app := buildTest(t, cfg)
	require.NotNil(t, app.localRouter)

	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	app.localRouter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_Restore(t *testing.T) {
	ctx := context.Background()
	src := testConfig(t, config.StorageDriverBadger)
	scfg, err := src.StorageConfig(logger.Discard())
	require.NoError(t, err)
	store, err := storage.Open(scfg)
	require.NoError(t, err)
	creds, err := domain.NewCredentials()
	require.NoError(t, err)
	creds.Registered = true
	require.NoError(t, store.Save(ctx, "vendas", creds))

	backup := filepath.Join(t.TempDir(), "pairlink.bak")
	f, err := os.Create(backup)
	require.NoError(t, err)
	require.NoError(t, store.Backup(ctx, f))
	require.NoError(t, f.Close())
	require.NoError(t, store.Close())

	target := t.TempDir()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"pairlink-server",
		"--set", "storage.data_dir=" + target,
		"--set", "protocol.driver=simulated",
		"restore", "--from", backup}))
	assert.Contains(t, out.String(), "1 stored sessions")

	dst := testConfig(t, config.StorageDriverBadger)
	dst.Storage.DataDir = target
	dcfg, err := dst.StorageConfig(logger.Discard())
	require.NoError(t, err)
	restored, err := storage.Open(dcfg)
	require.NoError(t, err)
	defer restored.Close()
	got, err := restored.Load(ctx, "vendas")
	require.NoError(t, err)
	assert.Equal(t, creds.Fingerprint(), got.Fingerprint())

	err = newApp().Run([]string{"pairlink-server", "--set", "storage.driver=memory",
		"--set", "protocol.driver=simulated", "restore", "--from", backup})
	assert.ErrorContains(t, err, "storage.driver")
}
