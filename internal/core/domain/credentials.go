package domain

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/yndnr/pairlink-go/pkg/token"
)

// KeyPair is a Curve25519 key pair.
type KeyPair struct {
	Private []byte `json:"private"`
	Public  []byte `json:"public"`
}

// NewKeyPair generates a Curve25519 key pair.
func NewKeyPair() (KeyPair, error) {
	priv, err := token.Random(curve25519.ScalarSize)
	if err != nil {
		return KeyPair{}, ErrInternalServer.WithCause(err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, ErrInternalServer.WithCause(err)
	}
	return KeyPair{Private: priv, Public: pub}, nil
}

// Credentials is the durable authentication material that lets a session
// resume without pairing again. The manager treats it as opaque apart from
// Registered and Identity.
type Credentials struct {
	// Registered is true once pairing has completed at least once.
	Registered bool `json:"registered"`

	// Identity is the account these credentials belong to.
	Identity *Identity `json:"identity,omitempty"`

	NoiseKey       KeyPair `json:"noise_key"`
	IdentityKey    KeyPair `json:"identity_key"`
	RegistrationID uint32  `json:"registration_id"`
	AdvSecret      string  `json:"adv_secret"`

	// Extra holds driver-specific state the remote end hands back.
	Extra map[string]string `json:"extra,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewCredentials mints fresh, unregistered credentials for a first pairing.
func NewCredentials() (*Credentials, error) {
	noise, err := NewKeyPair()
	if err != nil {
		return nil, err
	}
	ident, err := NewKeyPair()
	if err != nil {
		return nil, err
	}
	secret, err := token.Secret()
	if err != nil {
		return nil, ErrInternalServer.WithCause(err)
	}
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, ErrInternalServer.WithCause(err)
	}
	return &Credentials{
		NoiseKey:    noise,
		IdentityKey: ident,
		// 14-bit registration IDs, never zero.
		RegistrationID: binary.BigEndian.Uint32(buf[:])&0x3fff + 1,
		AdvSecret:      secret,
		UpdatedAt:      time.Now(),
	}, nil
}

// Fingerprint returns a stable, non-secret identifier of the identity key,
// safe to log.
func (c *Credentials) Fingerprint() string {
	if c == nil || len(c.IdentityKey.Public) == 0 {
		return ""
	}
	return token.Fingerprint(c.IdentityKey.Public)
}

// Clone creates a deep copy of the credentials.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Identity != nil {
		id := *c.Identity
		clone.Identity = &id
	}
	clone.NoiseKey = c.NoiseKey.clone()
	clone.IdentityKey = c.IdentityKey.clone()
	if c.Extra != nil {
		clone.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}

func (k KeyPair) clone() KeyPair {
	return KeyPair{
		Private: append([]byte(nil), k.Private...),
		Public:  append([]byte(nil), k.Public...),
	}
}
