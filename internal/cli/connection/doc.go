// Package connection resolves which pairlink server the CLI talks to and
// provides the HTTP client for it.
package connection
