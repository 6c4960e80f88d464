// Package logger provides structured logging for pairlink.
//
// Loggers are backed by zerolog and write JSON or console lines under a
// process-wide level that the config watcher can change at runtime.
// Values that look like API key secrets, pairing codes or QR data URLs
// are masked before they reach the output, as are fields whose key names
// a secret.
//
// Request IDs and session names travel in the context; L returns a logger
// that carries both.
package logger
