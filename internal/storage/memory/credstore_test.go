package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

func TestCredentialStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore()

	_, err := s.Load(ctx, "vendas")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	creds, err := domain.NewCredentials()
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "vendas", creds))

	got, err := s.Load(ctx, "vendas")
	require.NoError(t, err)
	assert.Equal(t, creds.AdvSecret, got.AdvSecret)
	assert.Equal(t, 1, s.Saves("vendas"))

	got.AdvSecret = "mutated"
	again, _ := s.Load(ctx, "vendas")
	assert.Equal(t, creds.AdvSecret, again.AdvSecret, "Load must return a copy")

	require.NoError(t, s.Delete(ctx, "vendas"))
	require.NoError(t, s.Delete(ctx, "vendas"), "Delete is idempotent")
	assert.False(t, s.Has("vendas"))
}

func TestCredentialStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore()
	for _, name := range []string{"b", "c", "a"} {
		require.NoError(t, s.Save(ctx, name, &domain.Credentials{}))
	}
	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestCredentialStore_FailOn(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore()
	boom := errors.New("disk on fire")

	s.FailOn(OpSave, boom)
	assert.ErrorIs(t, s.Save(ctx, "vendas", &domain.Credentials{}), boom)

	s.FailOn(OpSave, nil)
	assert.NoError(t, s.Save(ctx, "vendas", &domain.Credentials{}))

	s.FailOn(OpLoad, boom)
	_, err := s.Load(ctx, "vendas")
	assert.ErrorIs(t, err, boom)

	assert.Error(t, s.Save(ctx, "x", nil))
}
