// Package localserver serves the session API on a Unix domain socket.
//
// The socket is meant for operators on the same host. Requests arriving
// on it skip API key checks, so the socket file is created with mode
// 0600 and its directory should be restricted as well.
//
// A stale socket left by a crashed process is removed on start; a socket
// that still answers is reported as in use.
package localserver
