package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/pairlink-go/pkg/token"
)

// API key constants.
const (
	// APIKeyIDPrefix is the prefix for API key IDs (public, uses hyphen).
	APIKeyIDPrefix = "plak-"

	// APIKeySecretPrefix is the prefix for API key secrets (sensitive, uses underscore).
	APIKeySecretPrefix = "plas_"
)

// Role defines the permission level of an API key.
type Role string

const (
	// RoleReader can inspect sessions and metrics.
	RoleReader Role = "reader"

	// RoleOperator can also start, log out and send through sessions.
	RoleOperator Role = "operator"

	// RoleAdmin has full access.
	RoleAdmin Role = "admin"
)

// IsValidRole checks if a string is a valid role.
func IsValidRole(r string) bool {
	switch Role(r) {
	case RoleReader, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// Permission represents an action that can be performed.
type Permission string

const (
	PermSessionRead   Permission = "session.read"
	PermSessionStart  Permission = "session.start"
	PermSessionLogout Permission = "session.logout"
	PermMessageSend   Permission = "message.send"
	PermMetricsRead   Permission = "metrics.read"
	PermSystemConfig  Permission = "system.config"
)

// rolePermissions defines the permissions granted to each role.
var rolePermissions = map[Role][]Permission{
	RoleReader: {
		PermSessionRead,
		PermMetricsRead,
	},
	RoleOperator: {
		PermSessionRead,
		PermSessionStart,
		PermSessionLogout,
		PermMessageSend,
		PermMetricsRead,
	},
	RoleAdmin: {
		PermSessionRead,
		PermSessionStart,
		PermSessionLogout,
		PermMessageSend,
		PermMetricsRead,
		PermSystemConfig,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// APIKey is a static access key loaded from configuration.
// Only the SHA-256 hash of the secret is ever configured.
type APIKey struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	SecretHash string `json:"-"`
	Role       Role   `json:"role"`
}

// NewAPIKey mints a key and returns it together with the plaintext secret,
// which is shown once and never stored.
func NewAPIKey(name string, role Role) (*APIKey, string, error) {
	if !IsValidRole(string(role)) {
		return nil, "", ErrInvalidArgument.WithDetails("invalid role " + string(role))
	}
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return nil, "", ErrInternalServer.WithCause(err)
	}
	raw, err := token.Secret()
	if err != nil {
		return nil, "", ErrInternalServer.WithCause(err)
	}
	secret := APIKeySecretPrefix + raw
	return &APIKey{
		ID:         APIKeyIDPrefix + strings.ToLower(id.String()),
		Name:       name,
		SecretHash: token.Digest(secret),
		Role:       role,
	}, secret, nil
}

// Verify checks a presented secret against the stored hash.
func (k *APIKey) Verify(secret string) bool {
	return k.SecretHash != "" && token.Matches(secret, k.SecretHash)
}

// MaskAPIKeySecret masks an API key secret for safe logging.
func MaskAPIKeySecret(secret string) string {
	if len(secret) < 10 {
		return "***REDACTED***"
	}
	if strings.HasPrefix(secret, APIKeySecretPrefix) {
		body := secret[len(APIKeySecretPrefix):]
		if len(body) > 6 {
			return APIKeySecretPrefix + body[:3] + "..." + body[len(body)-3:]
		}
		return APIKeySecretPrefix + "***"
	}
	return "***REDACTED***"
}
