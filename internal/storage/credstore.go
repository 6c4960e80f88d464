package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
	"github.com/yndnr/pairlink-go/pkg/crypto/adaptive"
)

const credPrefix = "creds/"

// Record format tags.
const (
	formatPlain  byte = 1
	formatSealed byte = 2
)

// EncryptionInfo is the HKDF info string for the credential key.
const EncryptionInfo = "pairlink credentials v1"

// CredentialStore keeps session credentials in Badger.
type CredentialStore struct {
	engine *BadgerEngine
	cipher adaptive.Cipher
	logger logger.Logger
}

var _ service.CredentialStore = (*CredentialStore)(nil)

// Open opens the database and returns a store over it.
func Open(cfg Config) (*CredentialStore, error) {
	engine, err := NewBadgerEngine(cfg)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return &CredentialStore{
		engine: engine,
		cipher: cfg.Cipher,
		logger: engine.logger,
	}, nil
}

// NewCipher derives the record key from secret and builds the cipher
// named by cipherType. An empty secret disables encryption.
func NewCipher(secret string, cipherType string) (adaptive.Cipher, error) {
	if secret == "" {
		return nil, nil
	}
	ct, err := adaptive.ParseCipherType(cipherType)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithCause(err)
	}
	key, err := adaptive.DeriveKey([]byte(secret), EncryptionInfo)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithCause(err)
	}
	c, err := adaptive.NewWithType(key, ct)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithCause(err)
	}
	return c, nil
}

// Engine returns the underlying database.
func (s *CredentialStore) Engine() *BadgerEngine {
	return s.engine
}

// Encrypted reports whether records are sealed.
func (s *CredentialStore) Encrypted() bool {
	return s.cipher != nil
}

// Load implements service.CredentialStore.
func (s *CredentialStore) Load(ctx context.Context, name string) (*domain.Credentials, error) {
	raw, err := s.engine.Get(ctx, credKey(name))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrCredentialNotFound.WithDetails(name)
		}
		return nil, domain.ErrCredentialUnavailable.WithCause(err)
	}
	return s.decode(name, raw)
}

// Save implements service.CredentialStore.
func (s *CredentialStore) Save(ctx context.Context, name string, creds *domain.Credentials) error {
	if creds == nil {
		return domain.ErrInvalidArgument.WithDetails("credentials are nil")
	}
	raw, err := s.encode(name, creds)
	if err != nil {
		return err
	}
	if err := s.engine.Set(ctx, credKey(name), raw); err != nil {
		return domain.ErrCredentialUnavailable.WithCause(err)
	}
	return nil
}

// Delete implements service.CredentialStore.
func (s *CredentialStore) Delete(ctx context.Context, name string) error {
	if err := s.engine.Delete(ctx, credKey(name)); err != nil {
		return domain.ErrCredentialUnavailable.WithCause(err)
	}
	return nil
}

// List implements service.CredentialStore.
func (s *CredentialStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.engine.Keys(ctx, []byte(credPrefix))
	if err != nil {
		return nil, domain.ErrCredentialUnavailable.WithCause(err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, credPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// Stats returns database statistics.
func (s *CredentialStore) Stats(ctx context.Context) (*Stats, error) {
	return s.engine.Stats(ctx, []byte(credPrefix))
}

// Ping reports whether the database is open.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.engine.check(ctx)
}

// Backup writes a database backup to w. Sealed records stay sealed.
func (s *CredentialStore) Backup(ctx context.Context, w io.Writer) error {
	if err := s.engine.Backup(ctx, w); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// Restore loads a backup written by Backup. Records keep the sealing
// they were written with, so the same encryption key must be configured.
func (s *CredentialStore) Restore(ctx context.Context, r io.Reader) error {
	if err := s.engine.Restore(ctx, r); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// Close closes the database.
func (s *CredentialStore) Close() error {
	return s.engine.Close()
}

func (s *CredentialStore) encode(name string, creds *domain.Credentials) ([]byte, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	if s.cipher == nil {
		return append([]byte{formatPlain}, payload...), nil
	}
	sealed, err := s.cipher.Encrypt(payload, []byte(name))
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	return append([]byte{formatSealed}, sealed...), nil
}

func (s *CredentialStore) decode(name string, raw []byte) (*domain.Credentials, error) {
	if len(raw) < 2 {
		return nil, domain.ErrCredentialCorrupt.WithDetails(name)
	}
	payload := raw[1:]
	switch raw[0] {
	case formatPlain:
	case formatSealed:
		if s.cipher == nil {
			return nil, domain.ErrCredentialUnavailable.WithDetails("record is encrypted and no key is configured")
		}
		plain, err := s.cipher.Decrypt(payload, []byte(name))
		if err != nil {
			s.logger.Warn("credential record failed authentication", "session", name)
			return nil, domain.ErrCredentialCorrupt.WithDetails(name).WithCause(err)
		}
		payload = plain
	default:
		return nil, domain.ErrCredentialCorrupt.WithDetails("unknown record format")
	}

	var creds domain.Credentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return nil, domain.ErrCredentialCorrupt.WithDetails(name).WithCause(err)
	}
	return &creds, nil
}

func credKey(name string) []byte {
	return []byte(credPrefix + name)
}
