// Package repl runs pairlink-cli commands interactively.
//
// Each input line is split into arguments with shell-like quoting and
// handed to an Executor. Built-ins:
//
//	help [PREFIX]   list commands, optionally filtered by prefix
//	history         show previous lines
//	exit, quit      leave the shell
//
// History is kept in a file next to the CLI configuration.
package repl
