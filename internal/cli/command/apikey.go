package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/pairlink-go/internal/cli/connection"
	"github.com/yndnr/pairlink-go/internal/core/domain"
)

// APIKeyCommand returns the apikey subcommand group.
func APIKeyCommand() *cli.Command {
	return &cli.Command{
		Name:    "apikey",
		Aliases: []string{"key"},
		Usage:   "Create API keys for the server configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Mint a key and print the entry for server.http.api_keys",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Key name",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "role",
						Aliases: []string{"r"},
						Usage:   "Key role (reader, operator, admin)",
						Value:   string(domain.RoleOperator),
					},
					&cli.StringFlag{
						Name:  "save-as",
						Usage: "Also save the key into this CLI connection profile",
					},
				},
				Action: apikeyGenerate,
			},
		},
	}
}

// apiKeyEntry is one element of server.http.api_keys.
type apiKeyEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	SecretHash string `yaml:"secret_hash"`
	Role       string `yaml:"role"`
}

func apikeyGenerate(c *cli.Context) error {
	key, secret, err := domain.NewAPIKey(c.String("name"), domain.Role(c.String("role")))
	if err != nil {
		return err
	}

	snippet, err := yaml.Marshal([]apiKeyEntry{{
		ID:         key.ID,
		Name:       key.Name,
		SecretHash: key.SecretHash,
		Role:       string(key.Role),
	}})
	if err != nil {
		return err
	}

	printf(c, "API key created:\n")
	printf(c, "  ID:     %s\n", key.ID)
	printf(c, "  Secret: %s\n", secret)
	printf(c, "  Role:   %s\n\n", key.Role)
	printf(c, "Add to server.http.api_keys in the server configuration:\n\n%s\n", snippet)
	printf(c, "Save the secret now. Only its hash is stored.\n")

	if profile := c.String("save-as"); profile != "" {
		mgr := GetConnectionManager(c)
		server := mgr.Resolve(c.String("server"), "", "").Server
		if err := mgr.Connect(&connection.Connection{
			Name:     profile,
			Server:   server,
			APIKeyID: key.ID,
			APIKey:   secret,
		}); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		printf(c, "Saved to connection profile %q (%s).\n", profile, server)
	}
	return nil
}
