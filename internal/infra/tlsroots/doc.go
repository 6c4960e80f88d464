// Package tlsroots holds the server's TLS material.
//
// Reloader serves the HTTP certificate and swaps it in place when the
// files on disk are rotated, so long-polling clients keep their
// listener. ClientConfig trusts a private CA on top of the system roots,
// as used when the protocol bridge sits behind an internal certificate.
package tlsroots
