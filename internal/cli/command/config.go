package command

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairlink-go/internal/cli/config"
	"github.com/yndnr/pairlink-go/internal/cli/output"
	"github.com/yndnr/pairlink-go/internal/infra/confloader"
	serverconfig "github.com/yndnr/pairlink-go/internal/server/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the CLI configuration with secrets masked",
				Action: configShow,
			},
			{
				Name:      "validate-server",
				Usage:     "Check a server configuration file, with PAIRLINK_ environment overrides applied",
				ArgsUsage: "FILE",
				Action:    configValidateServer,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	cfg := *GetConnectionManager(c).Config()
	masked := make(map[string]config.ConnectionConfig, len(cfg.Connections))
	for name, conn := range cfg.Connections {
		if conn.APIKey != "" {
			conn.APIKey = maskKey(conn.APIKey)
		}
		masked[name] = conn
	}
	cfg.Connections = masked

	printf(c, "# %s\n", c.String("config"))
	return (&output.YAMLFormatter{}).Format(c.App.Writer, yamlView(cfg))
}

// yamlView converts the config to the same keys as the file on disk.
func yamlView(cfg config.CLIConfig) map[string]any {
	conns := make(map[string]any, len(cfg.Connections))
	for name, conn := range cfg.Connections {
		conns[name] = map[string]string{
			"server":     conn.Server,
			"api_key_id": conn.APIKeyID,
			"api_key":    conn.APIKey,
		}
	}
	return map[string]any{
		"default_server":     cfg.DefaultServer,
		"default_output":     cfg.DefaultOutput,
		"current_connection": cfg.CurrentConnection,
		"connections":        conns,
	}
}

func maskKey(s string) string {
	if len(s) <= 9 {
		return "****"
	}
	return s[:5] + strings.Repeat("*", 4) + s[len(s)-4:]
}

func configValidateServer(c *cli.Context) error {
	path, err := requireArg(c, "configuration file")
	if err != nil {
		return err
	}

	cfg := serverconfig.Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := serverconfig.Verify(cfg); err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}

	t := &output.Table{Headers: []string{"SETTING", "VALUE"}}
	t.AddRow("http address", cfg.Server.HTTP.Addr)
	t.AddRow("tls", output.Cell(cfg.Server.HTTP.TLSCertFile != ""))
	t.AddRow("api keys", fmt.Sprint(len(cfg.Server.HTTP.APIKeys)))
	t.AddRow("storage", cfg.Storage.Driver+" "+cfg.Storage.DataDir)
	t.AddRow("encrypted", output.Cell(cfg.Security.EncryptionKey != ""))
	t.AddRow("protocol", cfg.Protocol.Driver)
	t.AddRow("pairing timeout", cfg.Session.PairingTimeout.String())
	t.AddRow("log level", cfg.Log.Level)

	printf(c, "✓ %s is valid\n\n", path)
	return t.Render(c.App.Writer)
}
