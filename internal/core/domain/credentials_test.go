package domain

import (
	"bytes"
	"encoding/json"
	"testing"

	"golang.org/x/crypto/curve25519"
)

func TestNewCredentials(t *testing.T) {
	c, err := NewCredentials()
	if err != nil {
		t.Fatalf("NewCredentials() error = %v", err)
	}
	if c.Registered || c.Identity != nil {
		t.Error("fresh credentials must be unregistered")
	}
	if c.RegistrationID == 0 || c.RegistrationID > 0x4000 {
		t.Errorf("RegistrationID = %d out of range", c.RegistrationID)
	}
	if c.AdvSecret == "" {
		t.Error("AdvSecret should be set")
	}

	pub, err := curve25519.X25519(c.IdentityKey.Private, curve25519.Basepoint)
	if err != nil {
		t.Fatalf("X25519() error = %v", err)
	}
	if !bytes.Equal(pub, c.IdentityKey.Public) {
		t.Error("identity public key does not match private key")
	}
	if bytes.Equal(c.NoiseKey.Private, c.IdentityKey.Private) {
		t.Error("noise and identity keys must differ")
	}
}

func TestCredentialsFingerprint(t *testing.T) {
	c, err := NewCredentials()
	if err != nil {
		t.Fatalf("NewCredentials() error = %v", err)
	}
	fp := c.Fingerprint()
	if len(fp) != 16 {
		t.Errorf("Fingerprint length = %d, want 16", len(fp))
	}
	if fp != c.Clone().Fingerprint() {
		t.Error("Fingerprint should be stable across clones")
	}
	var nilCreds *Credentials
	if nilCreds.Fingerprint() != "" {
		t.Error("nil credentials should have empty fingerprint")
	}
}

func TestCredentialsCloneAndJSON(t *testing.T) {
	c, err := NewCredentials()
	if err != nil {
		t.Fatalf("NewCredentials() error = %v", err)
	}
	c.Registered = true
	c.Identity = &Identity{ID: "5511999@s.whatsapp.net", Name: "Vendas"}
	c.Extra = map[string]string{"platform": "web"}

	clone := c.Clone()
	clone.Identity.Name = "changed"
	clone.Extra["platform"] = "changed"
	clone.IdentityKey.Private[0] ^= 0xff

	if c.Identity.Name != "Vendas" || c.Extra["platform"] != "web" {
		t.Error("Clone should deep copy identity and extra")
	}
	if bytes.Equal(c.IdentityKey.Private, clone.IdentityKey.Private) {
		t.Error("Clone should deep copy key material")
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back Credentials
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !back.Registered || back.Identity.ID != c.Identity.ID || !bytes.Equal(back.NoiseKey.Public, c.NoiseKey.Public) {
		t.Errorf("round trip lost data: %+v", back)
	}
}
