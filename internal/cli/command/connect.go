package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairlink-go/internal/cli/connection"
	"github.com/yndnr/pairlink-go/internal/cli/output"
)

// ConnectCommand returns the connect command.
func ConnectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Save a server as a named connection and make it current",
		ArgsUsage: "NAME SERVER",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-check",
				Usage: "Save without checking that the server answers",
			},
		},
		Action: connectAction,
	}
}

func connectAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: connect NAME SERVER")
	}
	flags := ParseGlobalFlags(c)
	conn := &connection.Connection{
		Name:     c.Args().Get(0),
		Server:   c.Args().Get(1),
		APIKeyID: flags.APIKeyID,
		APIKey:   flags.APIKey,
	}

	if !c.Bool("no-check") {
		client := connection.NewHTTPClient(conn.Server, conn.APIKeyID, conn.APIKey)
		if err := checkHealth(c.Context, client); err != nil {
			return fmt.Errorf("server check failed (use --no-check to save anyway): %w", err)
		}
	}

	if err := GetConnectionManager(c).Connect(conn); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	printf(c, "Connected to %s as %q\n", conn.Server, conn.Name)
	return nil
}

// UseCommand returns the use command for switching connections.
func UseCommand() *cli.Command {
	return &cli.Command{
		Name:      "use",
		Usage:     "Switch to a saved connection, or list them",
		ArgsUsage: "[NAME]",
		Action: func(c *cli.Context) error {
			mgr := GetConnectionManager(c)
			name := c.Args().First()
			if name == "" {
				return listConnections(c)
			}
			if err := mgr.Use(name); err != nil {
				return err
			}
			printf(c, "Using connection %q\n", name)
			return nil
		},
	}
}

func listConnections(c *cli.Context) error {
	cfg := GetConnectionManager(c).Config()
	t := &output.Table{Headers: []string{"CURRENT", "NAME", "SERVER", "API KEY"}}
	for _, name := range cfg.Names() {
		conn := cfg.Connections[name]
		cur := ""
		if name == cfg.CurrentConnection {
			cur = "*"
		}
		t.AddRow(cur, name, conn.Server, output.Cell(conn.APIKeyID))
	}
	return t.Render(c.App.Writer)
}

// DisconnectCommand returns the disconnect command.
func DisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Stop using the current connection",
		Action: func(c *cli.Context) error {
			mgr := GetConnectionManager(c)
			if mgr.Current() == "" {
				printf(c, "Not connected to any server\n")
				return nil
			}
			if err := mgr.Disconnect(); err != nil {
				return err
			}
			printf(c, "Disconnected\n")
			return nil
		},
	}
}
