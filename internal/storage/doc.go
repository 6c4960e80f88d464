// Package storage persists session credentials in an embedded Badger
// database.
//
// Records live under the key "creds/<session>". Each value starts with a
// one-byte format tag followed by the JSON encoded credentials, sealed
// with an AEAD from pkg/crypto/adaptive when an encryption key is
// configured. The session name is bound to the ciphertext as additional
// data, so a record copied to another key fails to open.
//
// A background loop runs value-log GC, and RegisterMetrics exposes the
// database size to Prometheus.
package storage
