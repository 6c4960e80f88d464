package command

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
	"github.com/yndnr/pairlink-go/internal/pairing"
	"github.com/yndnr/pairlink-go/internal/protocol/simulated"
	"github.com/yndnr/pairlink-go/internal/server/httpserver"
	"github.com/yndnr/pairlink-go/internal/server/httpserver/handler"
	"github.com/yndnr/pairlink-go/internal/storage/memory"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// cliEnv runs commands against a real router backed by the simulated
// network.
type cliEnv struct {
	t          *testing.T
	server     *httptest.Server
	manager    *service.Manager
	network    *simulated.Network
	store      *memory.CredentialStore
	configPath string
	stdin      string
}

type stubBackup struct{}

func (stubBackup) Backup(_ context.Context, w io.Writer) error {
	_, err := io.WriteString(w, "badger-backup-bytes")
	return err
}

func newCLIEnv(t *testing.T, keys ...*domain.APIKey) *cliEnv {
	t.Helper()
	env := &cliEnv{
		t:          t,
		network:    simulated.NewNetwork(),
		store:      memory.NewCredentialStore(),
		configPath: filepath.Join(t.TempDir(), "cli.yaml"),
	}

	cfg := service.DefaultManagerConfig()
	cfg.StartWait = 2 * time.Second
	cfg.LogoutTimeout = 200 * time.Millisecond
	m, err := service.NewManager(cfg, service.Dependencies{
		Store:    env.store,
		Dialer:   env.network,
		Renderer: pairing.NewRenderer(pairing.WithSize(128)),
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	env.manager = m

	env.server = httptest.NewServer(httpserver.NewRouter(&httpserver.RouterConfig{
		Handler: handler.Config{
			Manager:  m,
			Renderer: pairing.NewRenderer(),
			Backup:   stubBackup{},
			MaxWait:  5 * time.Second,
		},
		AuthService: service.NewAuthService(service.AuthServiceConfig{Keys: keys}),
		Logger:      logger.Discard(),
	}))

	t.Cleanup(func() {
		env.server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return env
}

// run executes the CLI against the test server.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	return e.runRaw(append([]string{"--server", e.server.URL}, args...)...)
}

// runRaw executes the CLI without an explicit --server.
func (e *cliEnv) runRaw(args ...string) (string, error) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(e.stdin)

	full := append([]string{"pairlink-cli", "--config", e.configPath}, args...)
	err := app.RunContext(context.Background(), full)
	return out.String(), err
}

func (e *cliEnv) seedPaired(name string) {
	e.t.Helper()
	creds, err := domain.NewCredentials()
	require.NoError(e.t, err)
	creds.Registered = true
	creds.Identity = &domain.Identity{ID: name + "@s.whatsapp.net", Name: name}
	require.NoError(e.t, e.store.Save(context.Background(), name, creds))
}

func (e *cliEnv) connect(name string) {
	e.t.Helper()
	e.seedPaired(name)
	_, err := e.manager.Start(context.Background(), name)
	require.NoError(e.t, err)
	e.waitState(name, domain.StateConnected)
}

func (e *cliEnv) waitState(name string, state domain.State) {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.manager.WaitState(ctx, name, state)
	require.NoError(e.t, err)
}
