package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairlink-go/internal/cli/connection"
	"github.com/yndnr/pairlink-go/internal/cli/output"
)

// BackupCommand returns the backup command.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Download a backup of the server's credential store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"O"},
				Usage:   "Output file (default pairlink-<time>.bak)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Minute,
				Usage: "Give up after this long",
			},
		},
		Action: backupCreate,
	}
}

func backupCreate(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	out := c.String("out")
	if out == "" {
		out = "pairlink-" + time.Now().UTC().Format("20060102T150405Z") + ".bak"
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	resp, err := client.Get(ctx, "/admin/v1/backup")
	if err != nil {
		return err
	}
	if err := connection.CheckRaw(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	// Written under a temporary name so an interrupted download never
	// looks like a complete backup.
	tmp := out + ".part"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	progress := output.NewProgressWriter(c.App.ErrWriter, "backup", resp.ContentLength)
	_, err = io.Copy(io.MultiWriter(f, progress), resp.Body)
	progress.Finish()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("download backup: %w", err)
	}
	if err := os.Rename(tmp, out); err != nil {
		return err
	}

	printf(c, "Backup saved to %s (%s)\n", out, output.FormatBytes(progress.Written()))
	return nil
}
