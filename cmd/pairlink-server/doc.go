// Package main provides the entry point for pairlink-server.
//
// The server owns every pairing session of the process and exposes
// them over HTTP:
//
//   - session API (/sessions) plus the legacy routes (/start-session, /status/{name}, ...)
//   - liveness and readiness probes (/health, /ready)
//   - Prometheus metrics (/metrics)
//   - admin routes for status summaries and credential backups
//   - optionally, the same API on a Unix socket without API key checks
//
// Usage:
//
//	pairlink-server [--config FILE] [--check]
//
// Settings come from the YAML file and PAIRLINK_ environment variables
// (nested keys joined with "__", e.g. PAIRLINK_SERVER__HTTP__ADDR). The
// log level and API keys are reloaded when the file changes.
package main
