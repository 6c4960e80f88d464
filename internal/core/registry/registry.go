package registry

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

// entry is one committed snapshot. changed is closed exactly once, when
// the snapshot is superseded or removed.
type entry struct {
	session *domain.Session
	changed chan struct{}
}

func newEntry(s *domain.Session) *entry {
	return &entry{session: s, changed: make(chan struct{})}
}

// retire wakes everyone watching e.
func (e *entry) retire() {
	close(e.changed)
}

// Registry is a concurrent name -> session table.
//
// A nil value stored in the map is a tombstone left by an Update that
// raced with a removal; it is treated as absent and cleaned up.
type Registry struct {
	m cmap.ConcurrentMap[string, *entry]
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{m: cmap.New[*entry]()}
}

// Get returns a copy of the current snapshot.
func (r *Registry) Get(name string) (*domain.Session, bool) {
	e, ok := r.m.Get(name)
	if !ok || e == nil {
		return nil, false
	}
	return e.session.Clone(), true
}

// Watch returns the current snapshot and a channel that is closed on the
// next commit or removal for name.
func (r *Registry) Watch(name string) (*domain.Session, <-chan struct{}, bool) {
	e, ok := r.m.Get(name)
	if !ok || e == nil {
		return nil, nil, false
	}
	return e.session.Clone(), e.changed, true
}

// CreateIfAbsent inserts s unless a live (non-terminal) entry exists.
// A terminal entry is replaced. It returns the winning snapshot and
// whether s was inserted.
func (r *Registry) CreateIfAbsent(s *domain.Session) (*domain.Session, bool) {
	var created bool
	res := r.m.Upsert(s.Name, nil, func(exist bool, cur *entry, _ *entry) *entry {
		if exist && cur != nil && !cur.session.State.IsTerminal() {
			created = false
			return cur
		}
		if exist && cur != nil {
			cur.retire()
		}
		created = true
		return newEntry(s.Clone())
	})
	return res.session.Clone(), created
}

// Update applies fn to the current snapshot and commits the result
// atomically. fn receives a private copy. Returning an error, or the
// entry being absent, leaves the registry unchanged.
func (r *Registry) Update(name string, fn func(*domain.Session) (*domain.Session, error)) (*domain.Session, error) {
	if _, ok := r.m.Get(name); !ok {
		return nil, domain.ErrSessionNotFound.WithDetails(name)
	}

	var (
		result    *domain.Session
		updateErr error
		missing   bool
	)
	r.m.Upsert(name, nil, func(exist bool, cur *entry, _ *entry) *entry {
		if !exist || cur == nil {
			missing = true
			return nil
		}
		next, err := fn(cur.session.Clone())
		if err != nil {
			updateErr = err
			return cur
		}
		cur.retire()
		result = next.Clone()
		return newEntry(next)
	})

	if missing {
		r.m.RemoveCb(name, func(_ string, v *entry, exists bool) bool {
			return exists && v == nil
		})
		return nil, domain.ErrSessionNotFound.WithDetails(name)
	}
	if updateErr != nil {
		return nil, updateErr
	}
	return result, nil
}

// Remove deletes name and returns the last snapshot.
func (r *Registry) Remove(name string) (*domain.Session, bool) {
	return r.RemoveIf(name, nil)
}

// RemoveIf deletes name only when pred accepts the current snapshot.
// A nil pred always accepts.
func (r *Registry) RemoveIf(name string, pred func(*domain.Session) bool) (*domain.Session, bool) {
	var last *domain.Session
	removed := r.m.RemoveCb(name, func(_ string, v *entry, exists bool) bool {
		if !exists {
			return false
		}
		if v == nil {
			return true
		}
		if pred != nil && !pred(v.session) {
			return false
		}
		last = v.session.Clone()
		v.retire()
		return true
	})
	return last, removed && last != nil
}

// List returns copies of all snapshots, sorted by name.
func (r *Registry) List() []*domain.Session {
	items := r.m.Items()
	out := make([]*domain.Session, 0, len(items))
	for _, e := range items {
		if e == nil {
			continue
		}
		out = append(out, e.session.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of entries.
func (r *Registry) Count() int {
	n := 0
	r.m.IterCb(func(_ string, e *entry) {
		if e != nil {
			n++
		}
	})
	return n
}

// CountByState returns the number of entries per state. Every state is
// present in the result, zero or not.
func (r *Registry) CountByState() map[domain.State]int {
	counts := make(map[domain.State]int, len(domain.AllStates))
	for _, s := range domain.AllStates {
		counts[s] = 0
	}
	r.m.IterCb(func(_ string, e *entry) {
		if e != nil {
			counts[e.session.State]++
		}
	})
	return counts
}
