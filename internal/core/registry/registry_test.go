package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

func transitionTo(to domain.State) func(*domain.Session) (*domain.Session, error) {
	return func(s *domain.Session) (*domain.Session, error) {
		return s.Transition(to, time.Now())
	}
}

func TestCreateIfAbsent(t *testing.T) {
	r := New()

	got, created := r.CreateIfAbsent(domain.NewSession("vendas", time.Now()))
	require.True(t, created)
	assert.Equal(t, domain.StateInitializing, got.State)

	_, created = r.CreateIfAbsent(domain.NewSession("vendas", time.Now()))
	assert.False(t, created, "live entry must not be replaced")
	assert.Equal(t, 1, r.Count())
}

func TestCreateIfAbsentReplacesTerminal(t *testing.T) {
	r := New()
	r.CreateIfAbsent(domain.NewSession("vendas", time.Now()))
	_, err := r.Update("vendas", transitionTo(domain.StateError))
	require.NoError(t, err)

	_, ch, ok := r.Watch("vendas")
	require.True(t, ok)

	got, created := r.CreateIfAbsent(domain.NewSession("vendas", time.Now()))
	require.True(t, created)
	assert.Equal(t, domain.StateInitializing, got.State)

	select {
	case <-ch:
	default:
		t.Fatal("watchers of the replaced entry should be woken")
	}
}

func TestCreateIfAbsentConcurrent(t *testing.T) {
	r := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, created := r.CreateIfAbsent(domain.NewSession("vendas", time.Now())); created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestUpdate(t *testing.T) {
	r := New()
	r.CreateIfAbsent(domain.NewSession("vendas", time.Now()))

	_, ch, _ := r.Watch("vendas")

	got, err := r.Update("vendas", transitionTo(domain.StateConnecting))
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnecting, got.State)
	assert.Equal(t, uint64(2), got.Version)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("commit should close the watch channel")
	}

	cur, _ := r.Get("vendas")
	assert.Equal(t, domain.StateConnecting, cur.State)
}

func TestUpdateErrorLeavesEntry(t *testing.T) {
	r := New()
	r.CreateIfAbsent(domain.NewSession("vendas", time.Now()))
	_, ch, _ := r.Watch("vendas")

	boom := errors.New("boom")
	_, err := r.Update("vendas", func(*domain.Session) (*domain.Session, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	cur, _ := r.Get("vendas")
	assert.Equal(t, domain.StateInitializing, cur.State)
	select {
	case <-ch:
		t.Fatal("failed update must not wake watchers")
	default:
	}
}

func TestUpdateMissing(t *testing.T) {
	r := New()
	_, err := r.Update("ghost", transitionTo(domain.StateConnecting))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 0, r.Count())
}

func TestUpdateIsSerialized(t *testing.T) {
	r := New()
	r.CreateIfAbsent(domain.NewSession("vendas", time.Now()))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update("vendas", func(s *domain.Session) (*domain.Session, error) {
				s.ReconnectAttempt++
				return s, nil
			})
		}()
	}
	wg.Wait()

	cur, _ := r.Get("vendas")
	assert.Equal(t, 100, cur.ReconnectAttempt)
}

func TestGetReturnsCopy(t *testing.T) {
	r := New()
	r.CreateIfAbsent(domain.NewSession("vendas", time.Now()))

	s, _ := r.Get("vendas")
	s.State = domain.StateConnected

	cur, _ := r.Get("vendas")
	assert.Equal(t, domain.StateInitializing, cur.State)
}

func TestRemove(t *testing.T) {
	r := New()
	r.CreateIfAbsent(domain.NewSession("vendas", time.Now()))
	_, ch, _ := r.Watch("vendas")

	last, ok := r.Remove("vendas")
	require.True(t, ok)
	assert.Equal(t, "vendas", last.Name)

	_, ok = r.Get("vendas")
	assert.False(t, ok)
	select {
	case <-ch:
	default:
		t.Fatal("removal should close the watch channel")
	}

	_, ok = r.Remove("vendas")
	assert.False(t, ok)
}

func TestRemoveIf(t *testing.T) {
	r := New()
	s := domain.NewSession("vendas", time.Now())
	s.AttemptID = "a1"
	r.CreateIfAbsent(s)

	_, ok := r.RemoveIf("vendas", func(cur *domain.Session) bool { return cur.AttemptID == "other" })
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())

	_, ok = r.RemoveIf("vendas", func(cur *domain.Session) bool { return cur.AttemptID == "a1" })
	assert.True(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestListAndCounts(t *testing.T) {
	r := New()
	for i := 3; i > 0; i-- {
		r.CreateIfAbsent(domain.NewSession(fmt.Sprintf("s%d", i), time.Now()))
	}
	_, err := r.Update("s2", transitionTo(domain.StateConnected))
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "s1", list[0].Name)
	assert.Equal(t, "s3", list[2].Name)

	counts := r.CountByState()
	assert.Equal(t, 2, counts[domain.StateInitializing])
	assert.Equal(t, 1, counts[domain.StateConnected])
	assert.Equal(t, 0, counts[domain.StateError])
	assert.Len(t, counts, len(domain.AllStates))
}
