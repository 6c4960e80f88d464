package memory

import (
	"context"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

// Operation names accepted by FailOn.
const (
	OpLoad   = "load"
	OpSave   = "save"
	OpDelete = "delete"
	OpList   = "list"
)

// CredentialStore keeps credentials in a concurrent map.
type CredentialStore struct {
	creds cmap.ConcurrentMap[string, *domain.Credentials]

	mu       sync.Mutex
	failures map[string]error
	saves    map[string]int
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		creds:    cmap.New[*domain.Credentials](),
		failures: make(map[string]error),
		saves:    make(map[string]int),
	}
}

// FailOn makes every call of op return err until cleared with a nil err.
func (s *CredentialStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *CredentialStore) injected(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[op]
}

// Load returns a copy of the stored credentials.
func (s *CredentialStore) Load(_ context.Context, name string) (*domain.Credentials, error) {
	if err := s.injected(OpLoad); err != nil {
		return nil, err
	}
	c, ok := s.creds.Get(name)
	if !ok {
		return nil, domain.ErrCredentialNotFound.WithDetails(name)
	}
	return c.Clone(), nil
}

// Save stores a copy of creds.
func (s *CredentialStore) Save(_ context.Context, name string, creds *domain.Credentials) error {
	if err := s.injected(OpSave); err != nil {
		return err
	}
	if creds == nil {
		return domain.ErrInvalidArgument.WithDetails("credentials are nil")
	}
	s.creds.Set(name, creds.Clone())
	s.mu.Lock()
	s.saves[name]++
	s.mu.Unlock()
	return nil
}

// Delete removes the credentials for name. Missing entries are ignored.
func (s *CredentialStore) Delete(_ context.Context, name string) error {
	if err := s.injected(OpDelete); err != nil {
		return err
	}
	s.creds.Remove(name)
	return nil
}

// List returns the stored names, sorted.
func (s *CredentialStore) List(_ context.Context) ([]string, error) {
	if err := s.injected(OpList); err != nil {
		return nil, err
	}
	names := s.creds.Keys()
	sort.Strings(names)
	return names, nil
}

// Has reports whether credentials exist for name.
func (s *CredentialStore) Has(name string) bool {
	return s.creds.Has(name)
}

// Saves returns how many times credentials for name were saved.
func (s *CredentialStore) Saves(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[name]
}
