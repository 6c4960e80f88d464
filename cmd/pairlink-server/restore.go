package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairlink-go/internal/infra/confloader"
	"github.com/yndnr/pairlink-go/internal/server/config"
	"github.com/yndnr/pairlink-go/internal/storage"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "Load a credential backup into the data directory (server must be stopped)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "from",
				Aliases:  []string{"f"},
				Usage:    "Backup file written by GET /admin/v1/backup",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			overrides, err := confloader.ParseOverrides(c.StringSlice("set"))
			if err != nil {
				return err
			}
			_, cfg, err := loadConfig(c.String("config"), overrides)
			if err != nil {
				return err
			}
			return restoreBackup(c.Context, cfg, c.String("from"), c.App.Writer)
		},
	}
}

// restoreBackup opens the configured store, which fails while a running
// server holds the directory, and loads the backup into it.
func restoreBackup(ctx context.Context, cfg *config.ServerConfig, path string, out io.Writer) error {
	if cfg.Storage.Driver != config.StorageDriverBadger {
		return fmt.Errorf("restore needs storage.driver %q, have %q", config.StorageDriverBadger, cfg.Storage.Driver)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	scfg, err := cfg.StorageConfig(logger.Discard())
	if err != nil {
		return err
	}
	store, err := storage.Open(scfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if err := store.Restore(ctx, f); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	names, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list restored credentials: %w", err)
	}
	fmt.Fprintf(out, "restored %s into %s: %d stored sessions\n", path, cfg.Storage.DataDir, len(names))
	return nil
}
