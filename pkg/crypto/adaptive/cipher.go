package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKeySize is returned for keys the selected algorithm rejects.
	ErrInvalidKeySize = errors.New("adaptive: invalid key size")

	// ErrCiphertextTooShort is returned when the input cannot hold a nonce
	// and a tag.
	ErrCiphertextTooShort = errors.New("adaptive: ciphertext too short")

	// ErrUnknownCipher is returned for unsupported cipher names.
	ErrUnknownCipher = errors.New("adaptive: unknown cipher type")
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	// CipherAuto picks the fastest algorithm for the platform.
	CipherAuto     CipherType = "auto"
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// ParseCipherType parses a configured cipher name. An empty name is auto.
func ParseCipherType(name string) (CipherType, error) {
	switch t := CipherType(strings.ToLower(strings.TrimSpace(name))); t {
	case "", CipherAuto:
		return CipherAuto, nil
	case CipherAESGCM, CipherChaCha20:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCipher, name)
	}
}

// Preferred returns the algorithm auto resolves to on this host.
func Preferred() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		// crypto/aes is hardware accelerated here.
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

// Cipher seals and opens records. Ciphertexts are nonce || sealed data.
type Cipher interface {
	// Type returns the resolved algorithm, never CipherAuto.
	Type() CipherType

	// Encrypt seals plaintext. additionalData is authenticated but not
	// stored; the same bytes must be passed to Decrypt.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt opens a ciphertext produced by Encrypt.
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)
}

// New creates a cipher using the preferred algorithm for the host.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, CipherAuto)
}

// NewWithType creates a cipher of the given type. AES-GCM accepts 16, 24
// or 32 byte keys; ChaCha20-Poly1305 needs exactly 32.
func NewWithType(key []byte, t CipherType) (Cipher, error) {
	if t == CipherAuto || t == "" {
		t = Preferred()
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch t {
	case CipherAESGCM:
		switch len(key) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("%w: AES-GCM needs 16, 24 or 32 bytes, got %d", ErrInvalidKeySize, len(key))
		}
		var block cipher.Block
		if block, err = aes.NewCipher(key); err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("%w: ChaCha20-Poly1305 needs %d bytes, got %d", ErrInvalidKeySize, chacha20poly1305.KeySize, len(key))
		}
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCipher, t)
	}
	if err != nil {
		return nil, fmt.Errorf("adaptive: %s: %w", t, err)
	}
	return &aeadCipher{typ: t, aead: aead}, nil
}

type aeadCipher struct {
	typ  CipherType
	aead cipher.AEAD
}

func (c *aeadCipher) Type() CipherType {
	return c.typ
}

func (c *aeadCipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	out := make([]byte, ns, ns+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("adaptive: nonce: %w", err)
	}
	return c.aead.Seal(out, out[:ns], plaintext, additionalData), nil
}

func (c *aeadCipher) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns+c.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	return c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], additionalData)
}
