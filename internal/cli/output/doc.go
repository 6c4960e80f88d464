// Package output renders CLI results as tables, JSON or YAML, and draws
// the spinner and progress bar used by long-running commands.
package output
