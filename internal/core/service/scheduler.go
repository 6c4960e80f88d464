package service

import (
	"sync"
	"time"
)

// Scheduler holds at most one pending timer per session name.
//
// Cancel guarantees the callback of a cancelled timer never runs, even if
// the timer had already fired and its callback was waiting for the lock.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*scheduled
	closed bool
}

type scheduled struct {
	timer *time.Timer
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*scheduled)}
}

// Schedule runs fn after delay, replacing any pending timer for name.
// It reports false once the scheduler is closed.
func (s *Scheduler) Schedule(name string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if prev, ok := s.timers[name]; ok {
		prev.timer.Stop()
	}

	entry := &scheduled{}
	entry.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[name] != entry {
			s.mu.Unlock()
			return
		}
		delete(s.timers, name)
		s.mu.Unlock()
		fn()
	})
	s.timers[name] = entry
	return true
}

// Cancel drops the pending timer for name, if any.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[name]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, name)
	return true
}

// Pending reports whether a timer is pending for name.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// CancelAll drops every pending timer and refuses new ones.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, name)
	}
	s.closed = true
}
