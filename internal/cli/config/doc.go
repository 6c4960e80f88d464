// Package config holds pairlink-cli's local settings: the default server,
// the preferred output format and named connection profiles, stored as
// YAML in ~/.pairlink/cli.yaml.
package config
