package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// SecretSize is the entropy of a secret in bytes.
const SecretSize = 32

// FingerprintLen is the number of hex characters in a fingerprint.
const FingerprintLen = 16

// Random returns n bytes from crypto/rand.
func Random(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("token: invalid size %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("token: read random: %w", err)
	}
	return buf, nil
}

// Secret returns a URL-safe secret with SecretSize bytes of entropy.
func Secret() (string, error) {
	return SecretN(SecretSize)
}

// SecretN returns a URL-safe secret with n bytes of entropy.
func SecretN(n int) (string, error) {
	buf, err := Random(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Digest returns the hex SHA-256 of secret. Only digests are kept at rest.
func Digest(secret string) string {
	return DigestBytes([]byte(secret))
}

// DigestBytes returns the hex SHA-256 of data.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Matches reports whether secret hashes to digest, in constant time.
func Matches(secret, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Digest(secret)), []byte(digest)) == 1
}

// Fingerprint returns a short stable identifier for a public key.
func Fingerprint(public []byte) string {
	return DigestBytes(public)[:FingerprintLen]
}
