// Package httpserver provides the HTTP/HTTPS server for pairlink-server.
//
// Routes:
//
//   - Sessions: /sessions, /sessions/{name}, /sessions/{name}/qr.png,
//     /sessions/{name}/logout, /sessions/{name}/messages
//   - Legacy: /start-session, /status/{name}, /logout/{name}, /send-message
//   - Admin: /admin/v1/status/summary, /admin/v1/backup
//   - Probes and metrics: /health, /ready, /metrics
//
// Every API route runs behind the same chain: Recover, RequestID,
// Instrument, CORS, per-IP RateLimit, Audit, Auth and RequirePermission.
// TLS certificates come from the caller's tls.Config, so a reloading
// GetCertificate rotates them without a restart.
package httpserver
