// Package ratelimit implements fixed-window request counters keyed by client
// or identity, with a pluggable counter store.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store counts hits per key inside a fixed window. Increment must be atomic per
// key: concurrent callers for the same key each observe a distinct count.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
}

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in process memory. A janitor goroutine drops
// windows that have elapsed.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore starts a store whose janitor sweeps every interval. A
// non-positive interval disables the janitor.
func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	s := &MemoryStore{entries: make(map[string]*entry), stop: make(chan struct{})}
	if sweepEvery > 0 {
		go s.janitor(sweepEvery)
	}
	return s
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.resetAt, nil
}

// Sweep removes every window that has ended at now.
func (s *MemoryStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if !now.Before(e.resetAt) {
			delete(s.entries, k)
		}
	}
}

// Len reports the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the janitor. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-t.C:
			s.Sweep(now)
		}
	}
}
