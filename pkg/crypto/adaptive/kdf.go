package adaptive

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of derived keys.
const KeySize = 32

// MinSecretSize is the shortest secret DeriveKey accepts.
const MinSecretSize = 16

// DeriveKey expands secret into a KeySize key bound to info. Different
// info strings yield independent keys from the same secret.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) < MinSecretSize {
		return nil, fmt.Errorf("%w: secret needs at least %d bytes, got %d", ErrInvalidKeySize, MinSecretSize, len(secret))
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return key, nil
}
