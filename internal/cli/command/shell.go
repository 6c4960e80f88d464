package command

import (
	"bufio"
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairlink-go/internal/cli/repl"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run commands interactively against the current connection",
		Action: func(c *cli.Context) error {
			in := bufio.NewReader(c.App.Reader)
			globals := passthroughFlags(c)

			printf(c, "pairlink shell %s. Type help, or exit to leave.\n", c.App.Version)
			r := repl.New(repl.Config{
				Input:       in,
				Output:      c.App.Writer,
				Prompt:      "pairlink> ",
				Commands:    commandPaths("", c.App.Commands),
				HistoryFile: filepath.Join(filepath.Dir(c.String("config")), "history"),
				Exec: func(ctx context.Context, args []string) error {
					if args[0] == "shell" {
						return errors.New("already in a shell")
					}
					app := App()
					app.Writer = c.App.Writer
					app.ErrWriter = c.App.ErrWriter
					app.Reader = in
					app.ExitErrHandler = func(*cli.Context, error) {}
					return app.RunContext(ctx, append(append([]string{app.Name}, globals...), args...))
				},
			})
			return r.Run(c.Context)
		},
	}
}

// passthroughFlags repeats the global flags given to the shell so every
// line runs with the same connection and output settings.
func passthroughFlags(c *cli.Context) []string {
	var args []string
	for _, name := range []string{"config", "server", "api-key-id", "api-key", "output"} {
		if c.IsSet(name) {
			args = append(args, "--"+name, c.String(name))
		}
	}
	if c.Bool("wide") {
		args = append(args, "--wide")
	}
	return args
}

// commandPaths flattens the command tree into "parent child" paths.
func commandPaths(parent string, cmds []*cli.Command) []string {
	var paths []string
	for _, cmd := range cmds {
		if cmd.Hidden || cmd.Name == "help" {
			continue
		}
		path := strings.TrimSpace(parent + " " + cmd.Name)
		paths = append(paths, path)
		paths = append(paths, commandPaths(path, cmd.Subcommands)...)
	}
	return paths
}
