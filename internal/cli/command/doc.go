// Package command defines pairlink-cli's commands on top of urfave/cli.
//
// Every command resolves its target server through connection.Manager:
// explicit flags win, then the current saved profile, then the default
// server from the CLI config file.
package command
