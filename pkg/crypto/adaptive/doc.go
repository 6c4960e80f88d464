// Package adaptive seals small records with an AEAD picked for the host.
//
// AES-256-GCM is used where crypto/aes is hardware accelerated and
// ChaCha20-Poly1305 elsewhere. Ciphertexts carry their nonce as a prefix.
// Keys are derived from an operator secret with HKDF-SHA256, one key per
// purpose:
//
//	key, err := adaptive.DeriveKey(secret, "pairlink credentials v1")
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, []byte(sessionName))
package adaptive
