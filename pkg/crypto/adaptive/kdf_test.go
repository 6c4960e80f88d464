package adaptive

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	secret := []byte("correct horse battery staple")

	a, err := DeriveKey(secret, "credentials")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(a) != KeySize {
		t.Fatalf("DeriveKey() len = %d, want %d", len(a), KeySize)
	}

	again, _ := DeriveKey(secret, "credentials")
	if !bytes.Equal(a, again) {
		t.Error("DeriveKey() is not deterministic")
	}

	other, _ := DeriveKey(secret, "something else")
	if bytes.Equal(a, other) {
		t.Error("different info must give different keys")
	}
}

func TestDeriveKey_ShortSecret(t *testing.T) {
	_, err := DeriveKey([]byte("short"), "credentials")
	if !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("DeriveKey() error = %v, want ErrInvalidKeySize", err)
	}
}

func TestDeriveKey_UsableByCiphers(t *testing.T) {
	key, err := DeriveKey([]byte("0123456789abcdef0123"), "credentials")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	for _, ct := range []CipherType{CipherAESGCM, CipherChaCha20} {
		c, err := NewWithType(key, ct)
		if err != nil {
			t.Fatalf("NewWithType(%s) error = %v", ct, err)
		}
		sealed, err := c.Encrypt([]byte("payload"), []byte("vendas"))
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if _, err := c.Decrypt(sealed, []byte("suporte")); err == nil {
			t.Errorf("%s: Decrypt() with wrong additional data should fail", ct)
		}
	}
}
