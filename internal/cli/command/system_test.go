package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/pairlink-go/internal/cli/config"
	"github.com/yndnr/pairlink-go/internal/cli/connection"
	"github.com/yndnr/pairlink-go/internal/core/domain"
)

func TestSystemStatus(t *testing.T) {
	env := newCLIEnv(t)
	env.connect("suporte")

	out, err := env.run("system", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "STATE")
	assert.Contains(t, out, "CONNECTED")
	assert.Contains(t, out, "TOTAL")

	out, err = env.run("-o", "json", "system", "status")
	require.NoError(t, err)
	var sum statusSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 1, sum.Sessions)
	assert.Equal(t, 1, sum.ByState[string(domain.StateConnected)])
}

func TestSystemHealth(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("system", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "live")
	assert.Contains(t, out, "OK")
}

func TestSystemHealth_Unreachable(t *testing.T) {
	env := newCLIEnv(t)
	url := env.server.URL
	env.server.Close()

	_, err := env.runRaw("--server", url, "system", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestSystemVersion(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("-o", "json", "system", "version")
	require.NoError(t, err)
	var v versionReport
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.NotNil(t, v.Server)
	assert.Equal(t, v.Client.Version, v.Server.Version)
}

func TestAuthFlags(t *testing.T) {
	key, secret, err := domain.NewAPIKey("ops", domain.RoleOperator)
	require.NoError(t, err)
	env := newCLIEnv(t, key)

	_, err = env.run("session", "list")
	assert.True(t, connection.IsCode(err, domain.ErrAPIKeyMissing.Code), "got %v", err)

	_, err = env.run("--api-key-id", key.ID, "session", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be given together")

	out, err := env.run("-k", key.ID, "-K", secret, "session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
}

func TestConnectUseDisconnect(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.runRaw("connect", "local")
	assert.Error(t, err)

	out, err := env.runRaw("connect", "local", env.server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `as "local"`)

	out, err = env.runRaw("connect", "offline", "http://127.0.0.1:1", "--no-check")
	require.NoError(t, err)
	assert.Contains(t, out, `as "offline"`)

	_, err = env.runRaw("connect", "down", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--no-check")

	out, err = env.runRaw("use")
	require.NoError(t, err)
	assert.Contains(t, out, "local")
	assert.Contains(t, out, "offline")
	assert.NotContains(t, out, "down")

	_, err = env.runRaw("use", "local")
	require.NoError(t, err)

	// The current profile supplies the server.
	out, err = env.runRaw("session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")

	_, err = env.runRaw("use", "nope")
	assert.Error(t, err)

	out, err = env.runRaw("disconnect")
	require.NoError(t, err)
	assert.Contains(t, out, "Disconnected")

	out, err = env.runRaw("disconnect")
	require.NoError(t, err)
	assert.Contains(t, out, "Not connected")

	cfg, err := config.Load(env.configPath)
	require.NoError(t, err)
	assert.Empty(t, cfg.CurrentConnection)
	assert.Len(t, cfg.Connections, 2)
}

func TestAPIKeyGenerate(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("apikey", "generate", "--name", "ops", "--role", "admin", "--save-as", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "Secret: "+domain.APIKeySecretPrefix)
	assert.Contains(t, out, "secret_hash:")
	assert.Contains(t, out, "role: admin")
	assert.Contains(t, out, `Saved to connection profile "ops"`)

	cfg, err := config.Load(env.configPath)
	require.NoError(t, err)
	conn, ok := cfg.Connections["ops"]
	require.True(t, ok)
	assert.Equal(t, env.server.URL, conn.Server)
	assert.Contains(t, conn.APIKeyID, domain.APIKeyIDPrefix)
	assert.Contains(t, conn.APIKey, domain.APIKeySecretPrefix)
	assert.Equal(t, "ops", cfg.CurrentConnection)

	// Secrets are masked when shown.
	out, err = env.runRaw("config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, conn.APIKey)
	assert.Contains(t, out, "****")

	_, err = env.run("apikey", "generate", "--name", "ops", "--role", "root")
	assert.Error(t, err)
}

func TestBackup(t *testing.T) {
	env := newCLIEnv(t)
	out := filepath.Join(t.TempDir(), "pairlink.bak")

	stdout, err := env.run("backup", "-O", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Backup saved to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "badger-backup-bytes", string(data))
	_, err = os.Stat(out + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestConfigValidateServer(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
server:
  http:
    addr: "127.0.0.1:5081"
storage:
  driver: memory
protocol:
  driver: simulated
log:
  level: debug
`), 0o600))

	out, err := env.runRaw("config", "validate-server", good)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "127.0.0.1:5081")
	assert.Contains(t, out, "simulated")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
storage:
  driver: memory
protocol:
  driver: carrier-pigeon
`), 0o600))

	_, err = env.runRaw("config", "validate-server", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protocol.driver")

	_, err = env.runRaw("config", "validate-server")
	assert.Error(t, err)
}

func TestShell(t *testing.T) {
	env := newCLIEnv(t)
	env.connect("suporte")
	env.stdin = "session list\nsession logout suporte\ny\nbogus\nexit\n"

	out, err := env.run("shell")
	require.NoError(t, err)
	assert.Contains(t, out, "pairlink> ")
	assert.Contains(t, out, "suporte")
	assert.Contains(t, out, "Session suporte logged out.")
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.False(t, env.store.Has("suporte"))

	history, err := os.ReadFile(filepath.Join(filepath.Dir(env.configPath), "history"))
	require.NoError(t, err)
	assert.Contains(t, string(history), "session logout suporte")
}
