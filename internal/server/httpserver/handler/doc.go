// Package handler provides the HTTP request handlers for pairlink-server.
//
// Handlers are grouped by file:
//
//   - session.go: start, status long-poll, pairing image, logout and send
//   - legacy.go: the older flat routes kept for existing integrations
//   - admin.go: status summary and credential backups
//   - health.go: liveness and readiness probes
//
// Every handler parses the request, calls the session manager and maps
// domain errors to HTTP status codes through StatusForCode. A session
// still progressing when its wait runs out is answered with 202 and the
// current snapshot.
package handler
