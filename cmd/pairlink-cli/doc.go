// Package main provides the entry point for pairlink-cli.
//
// The CLI talks to a pairlink-server over HTTP:
//
//   - session start, status, list, qr, logout and send
//   - named connection profiles (connect, use, disconnect)
//   - system status, health and version
//   - API key generation and credential backups
//   - an interactive shell
//
// Usage:
//
//	pairlink-cli [global flags] command [flags]
//	pairlink-cli connect prod https://pairlink.example.com -k plak-... -K plas_...
//	pairlink-cli session start vendas --follow
package main
