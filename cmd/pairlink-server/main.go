package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairlink-go/internal/infra/buildinfo"
	"github.com/yndnr/pairlink-go/internal/infra/confloader"
	"github.com/yndnr/pairlink-go/internal/infra/shutdown"
	"github.com/yndnr/pairlink-go/internal/infra/tlsroots"
	"github.com/yndnr/pairlink-go/internal/server/config"
	"github.com/yndnr/pairlink-go/internal/server/httpserver"
	"github.com/yndnr/pairlink-go/internal/server/localserver"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// shutdownTimeout bounds all shutdown hooks together.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "pairlink-server",
		Usage:   "Serve the pairing session API",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"PAIRLINK_CONFIG_FILE"},
			},
			&cli.StringSliceFlag{
				Name:  "set",
				Usage: "Override a configuration key, e.g. --set log.level=debug (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Validate the configuration and exit",
			},
		},
		Commands: []*cli.Command{
			restoreCommand(),
		},
		Action: func(c *cli.Context) error {
			overrides, err := confloader.ParseOverrides(c.StringSlice("set"))
			if err != nil {
				return err
			}
			loader, cfg, err := loadConfig(c.String("config"), overrides)
			if err != nil {
				return err
			}
			if c.Bool("check") {
				fmt.Fprintf(c.App.Writer, "configuration ok (storage %s, protocol %s, listen %s)\n",
					cfg.Storage.Driver, cfg.Protocol.Driver, cfg.Server.HTTP.Addr)
				return nil
			}
			return run(c.Context, loader, cfg)
		},
	}
}

// loadConfig loads defaults, the file, the environment and command line
// overrides, then verifies.
func loadConfig(configFile string, overrides map[string]any) (*confloader.Loader, *config.ServerConfig, error) {
	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

func run(ctx context.Context, loader *confloader.Loader, cfg *config.ServerConfig) error {
	lcfg := cfg.LoggerConfig()
	lcfg.Output = os.Stdout
	lcfg.Service = "pairlink-server"
	log, err := logger.New(lcfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting pairlink-server",
		"version", info.Version,
		"commit", info.Commit,
		"go", info.GoVersion,
		"config", loader.FilePath())
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	shut := shutdown.NewHandler(shutdownTimeout, log)

	app, err := build(ctx, cfg, log, shut)
	if err != nil {
		// Release whatever was opened before the failure.
		_ = shut.Shutdown()
		return err
	}

	srvCfg := httpserver.Config{
		Addr:         cfg.Server.HTTP.Addr,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
	}
	if cfg.Server.HTTP.TLSCertFile != "" {
		certs, err := tlsroots.NewReloader(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile,
			tlsroots.WithLogger(log))
		if err != nil {
			_ = shut.Shutdown()
			return fmt.Errorf("load tls certificate: %w", err)
		}
		if err := certs.Watch(); err != nil {
			log.Warn("certificate rotation disabled", "error", err)
		}
		shut.OnShutdown("tls reloader", func(context.Context) error {
			return certs.Close()
		})
		if err := app.metrics.WatchCertificate(certs.NotAfter); err != nil {
			log.Warn("certificate expiry metric not registered", "error", err)
		}
		srvCfg.TLSConfig = certs.ServerConfig()
		log.Info("tls enabled", "cert_file", cfg.Server.HTTP.TLSCertFile, "not_after", certs.NotAfter())
	}

	ln, err := net.Listen("tcp", srvCfg.Addr)
	if err != nil {
		_ = shut.Shutdown()
		return fmt.Errorf("listen %s: %w", srvCfg.Addr, err)
	}
	srv := httpserver.New(srvCfg, app.router)
	shut.OnShutdown("http server", srv.Shutdown)

	var local *localserver.Server
	if path := cfg.Server.Local.SocketPath; path != "" {
		local = localserver.New(localserver.Config{Path: path}, app.localRouter)
		if err := local.Listen(); err != nil {
			_ = ln.Close()
			_ = shut.Shutdown()
			return fmt.Errorf("local socket: %w", err)
		}
		shut.OnShutdown("local socket", local.Shutdown)
	}

	if path := loader.FilePath(); path != "" {
		if err := watchConfig(path, loader, app, log, shut); err != nil {
			log.Warn("config reload disabled", "path", path, "error", err)
		}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		log.Info("http server listening", "addr", ln.Addr().String(), "tls", srvCfg.TLSConfig != nil)
		if err := srv.Serve(ln); err != nil {
			log.Error("http server failed", "error", err)
			cancel(err)
		}
	}()
	if local != nil {
		go func() {
			log.Info("local socket listening", "path", local.Path())
			if err := local.Serve(); err != nil {
				log.Error("local socket failed", "error", err)
				cancel(err)
			}
		}()
	}

	if err := shut.Wait(ctx); err != nil {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	log.Info("server stopped gracefully")
	return nil
}

// watchConfig reloads the log level and API keys when the file changes.
// Other settings need a restart.
func watchConfig(path string, loader *confloader.Loader, app *application, log logger.Logger, shut *shutdown.Handler) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return err
	}
	w.OnChange(func(string) {
		next := config.Default()
		if err := loader.Reload(next); err != nil {
			log.Error("config reload failed", "error", err)
			return
		}
		if err := config.Verify(next); err != nil {
			log.Error("config reload rejected", "error", err)
			return
		}
		if err := app.reload(next); err != nil {
			log.Error("config reload rejected", "error", err)
			return
		}
		log.Info("configuration reloaded",
			"log_level", next.Log.Level,
			"api_keys", len(next.Server.HTTP.APIKeys))
	})
	w.StartAsync()
	shut.OnShutdown("config watcher", func(context.Context) error {
		return w.Stop()
	})
	return nil
}
