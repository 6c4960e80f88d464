package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairlink-go/internal/cli/config"
	"github.com/yndnr/pairlink-go/internal/cli/connection"
	"github.com/yndnr/pairlink-go/internal/cli/output"
	"github.com/yndnr/pairlink-go/internal/infra/buildinfo"
)

const metaConnMgr = "connMgr"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "pairlink-cli",
		Usage:   "Manage pairlink sessions from the command line",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SessionCommand(),
			ConnectCommand(),
			UseCommand(),
			DisconnectCommand(),
			SystemCommand(),
			APIKeyCommand(),
			BackupCommand(),
			ConfigCommand(),
			ShellCommand(),
		},
		Before: func(c *cli.Context) error {
			path := c.String("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			c.App.Metadata[metaConnMgr] = connection.NewManager(cfg, path)
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "pairlink server address (e.g. localhost:5080)",
			EnvVars: []string{"PAIRLINK_SERVER"},
		},
		&cli.StringFlag{
			Name:    "api-key-id",
			Aliases: []string{"k"},
			Usage:   "API key ID for authentication",
			EnvVars: []string{"PAIRLINK_API_KEY_ID"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Aliases: []string{"K"},
			Usage:   "API key secret for authentication",
			EnvVars: []string{"PAIRLINK_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI configuration file",
			EnvVars: []string{"PAIRLINK_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server   string
	APIKeyID string
	APIKey   string
	Output   string
	Wide     bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Server:   c.String("server"),
		APIKeyID: c.String("api-key-id"),
		APIKey:   c.String("api-key"),
		Output:   c.String("output"),
		Wide:     c.Bool("wide"),
	}
}

// GetConnectionManager retrieves the connection manager from context.
func GetConnectionManager(c *cli.Context) *connection.Manager {
	if mgr, ok := c.App.Metadata[metaConnMgr].(*connection.Manager); ok {
		return mgr
	}
	return connection.NewManager(nil, c.String("config"))
}

// EnsureConnected resolves the target server and returns a client for it.
func EnsureConnected(c *cli.Context) (*connection.HTTPClient, error) {
	flags := ParseGlobalFlags(c)
	if (flags.APIKeyID == "") != (flags.APIKey == "") {
		return nil, fmt.Errorf("--api-key-id and --api-key must be given together")
	}
	conn := GetConnectionManager(c).Resolve(flags.Server, flags.APIKeyID, flags.APIKey)
	return connection.NewHTTPClient(conn.Server, conn.APIKeyID, conn.APIKey), nil
}

// outputFormat picks the format from the flag, then the CLI config.
func outputFormat(c *cli.Context) (output.Format, error) {
	f := c.String("output")
	if f == "" {
		f = GetConnectionManager(c).Config().DefaultOutput
	}
	return output.ParseFormat(f)
}

// render writes data to the app's writer in the selected format.
func render(c *cli.Context, data any) error {
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, c.Bool("wide")).Format(c.App.Writer, data)
}

// printf writes human-oriented text to the app's writer.
func printf(c *cli.Context, format string, args ...any) {
	fmt.Fprintf(c.App.Writer, format, args...)
}

// requireArg returns the first positional argument or a usage error.
func requireArg(c *cli.Context, what string) (string, error) {
	v := c.Args().First()
	if v == "" {
		return "", fmt.Errorf("%s required", what)
	}
	return v, nil
}

// confirm asks a yes/no question on the app's reader.
func confirm(c *cli.Context, prompt string) bool {
	fmt.Fprintf(c.App.Writer, "%s [y/N]: ", prompt)
	var answer string
	_, _ = fmt.Fscanln(c.App.Reader, &answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}
