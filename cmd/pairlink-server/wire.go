package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/yndnr/pairlink-go/internal/core/service"
	"github.com/yndnr/pairlink-go/internal/infra/shutdown"
	"github.com/yndnr/pairlink-go/internal/pairing"
	"github.com/yndnr/pairlink-go/internal/protocol"
	"github.com/yndnr/pairlink-go/internal/protocol/bridge"
	"github.com/yndnr/pairlink-go/internal/protocol/simulated"
	"github.com/yndnr/pairlink-go/internal/server/config"
	"github.com/yndnr/pairlink-go/internal/server/httpserver"
	"github.com/yndnr/pairlink-go/internal/server/httpserver/handler"
	"github.com/yndnr/pairlink-go/internal/storage"
	"github.com/yndnr/pairlink-go/internal/storage/memory"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
	"github.com/yndnr/pairlink-go/internal/telemetry/metric"
)

// application is the wired server, minus the listener.
type application struct {
	manager *service.Manager
	auth    *service.AuthService
	metrics *metric.Registry
	router  http.Handler

	// localRouter serves the Unix socket without API key checks. Nil
	// when the socket is disabled.
	localRouter http.Handler
}

// build opens storage, starts the manager, recovers stored sessions and
// assembles the router. Every component that needs releasing registers
// a shutdown hook, so hooks run in reverse: manager before storage.
func build(ctx context.Context, cfg *config.ServerConfig, log logger.Logger, shut *shutdown.Handler) (*application, error) {
	metrics := metric.NewRegistry()

	store, backup, ready, err := openStore(cfg, log, metrics, shut)
	if err != nil {
		return nil, err
	}

	dialer, err := newDialer(cfg, log)
	if err != nil {
		return nil, err
	}

	mgr, err := service.NewManager(cfg.ManagerConfig(), service.Dependencies{
		Store:    store,
		Dialer:   dialer,
		Renderer: pairing.NewRenderer(pairing.WithSize(cfg.Session.QRSize)),
		Recorder: metrics,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("init manager: %w", err)
	}
	shut.OnShutdown("session manager", mgr.Close)
	if err := metrics.Registerer().Register(metric.NewCollector(mgr)); err != nil {
		return nil, fmt.Errorf("register session metrics: %w", err)
	}

	if cfg.Recovery.Enabled {
		if err := recoverSessions(ctx, mgr, store, cfg.Recovery.Workers, log); err != nil {
			return nil, err
		}
	}

	authCfg, err := cfg.AuthConfig()
	if err != nil {
		return nil, err
	}
	auth := service.NewAuthService(authCfg)
	if !auth.Enabled() {
		log.Warn("no api keys configured; the API is open to every client that can reach it")
	}

	checks := append([]handler.ReadyCheck{{Name: "sessions", Check: mgr.Healthy}}, ready...)
	rcfg := &httpserver.RouterConfig{
		Handler: handler.Config{
			Manager:  mgr,
			Renderer: pairing.NewRenderer(),
			Backup:   backup,
			Ready:    checks,
			MaxWait:  cfg.Session.MaxWait,
			QRSize:   cfg.Session.QRSize,
			Logger:   log,
		},
		AuthService:        auth,
		Logger:             log,
		Metrics:            metrics,
		CORSAllowedOrigins: cfg.Server.HTTP.CORSOrigins,
		IPRateLimit:        cfg.Server.HTTP.IPRateLimit,
		EnableAudit:        true,
	}
	if cfg.Metrics.Enabled {
		rcfg.MetricsHandler = metrics.Handler()
		rcfg.MetricsPath = cfg.Metrics.Path
	}

	app := &application{
		manager: mgr,
		auth:    auth,
		metrics: metrics,
		router:  httpserver.NewRouter(rcfg),
	}
	if cfg.Server.Local.SocketPath != "" {
		local := *rcfg
		local.AuthService = service.NewAuthService(service.AuthServiceConfig{})
		local.CORSAllowedOrigins = nil
		local.IPRateLimit = 0
		app.localRouter = httpserver.NewRouter(&local)
	}
	return app, nil
}

// reload applies the settings that may change without a restart.
func (a *application) reload(cfg *config.ServerConfig) error {
	authCfg, err := cfg.AuthConfig()
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Log.Level)
	a.auth.SetKeys(authCfg.Keys)
	return nil
}

// openStore opens the configured credential store. The Badger store also
// serves backups and a readiness probe.
func openStore(cfg *config.ServerConfig, log logger.Logger, metrics *metric.Registry, shut *shutdown.Handler) (service.CredentialStore, handler.Backuper, []handler.ReadyCheck, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		log.Warn("memory storage: credentials are lost on restart")
		return memory.NewCredentialStore(), nil, nil, nil
	}

	scfg, err := cfg.StorageConfig(log)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := storage.Open(scfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open storage: %w", err)
	}
	shut.OnShutdown("credential store", func(context.Context) error {
		return store.Close()
	})
	if err := store.Engine().RegisterMetrics(metrics.Registerer()); err != nil {
		return nil, nil, nil, fmt.Errorf("register storage metrics: %w", err)
	}
	log.Info("credential store opened",
		"dir", cfg.Storage.DataDir,
		"encrypted", store.Encrypted())

	ready := []handler.ReadyCheck{{
		Name: "storage",
		Check: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(ctx)
		},
	}}
	return store, store, ready, nil
}

func newDialer(cfg *config.ServerConfig, log logger.Logger) (protocol.Dialer, error) {
	switch cfg.Protocol.Driver {
	case protocol.DriverSimulated:
		var opts []simulated.Option
		if d := cfg.Protocol.Simulated.AutoPair; d > 0 {
			opts = append(opts, simulated.WithAutoPair(d))
		}
		log.Warn("simulated protocol driver: no real connections are made", "auto_pair", cfg.Protocol.Simulated.AutoPair)
		return simulated.NewNetwork(opts...), nil
	default:
		d, err := bridge.NewDialer(cfg.BridgeConfig(log))
		if err != nil {
			return nil, fmt.Errorf("init bridge driver: %w", err)
		}
		log.Info("bridge protocol driver", "url", cfg.Protocol.Bridge.URL)
		return d, nil
	}
}

// recoverSessions resumes every stored, paired session.
func recoverSessions(ctx context.Context, mgr *service.Manager, store service.CredentialStore, workers int, log logger.Logger) error {
	boot, err := service.NewBootstrapper(mgr, store, workers, log)
	if err != nil {
		return err
	}
	defer boot.Release()

	start := time.Now()
	report, err := boot.Run(ctx)
	if err != nil {
		return fmt.Errorf("recover sessions: %w", err)
	}
	log.Info("stored sessions recovered",
		"resumed", len(report.Resumed),
		"failed", len(report.Failed),
		"took", time.Since(start))
	for name, err := range report.Failed {
		log.Warn("session not recovered", "session", name, "error", err)
	}
	return nil
}
