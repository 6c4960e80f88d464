// Package config defines the pairlink-server configuration.
//
//   - spec.go: ServerConfig and its sections
//   - default.go: default values
//   - verify.go: validation that needs more than types
//   - sanitize.go: a copy safe to log
//   - convert.go: translation into service, storage and driver settings
//
// Values are loaded by internal/infra/confloader from a YAML file with
// PAIRLINK_ environment overrides.
package config
