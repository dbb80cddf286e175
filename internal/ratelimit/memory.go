package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is a process-local CounterStore for single-node deployments
// and tests. GC must be scheduled by the caller to drop expired windows.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: map[string]*memoryCounter{},
		now:      time.Now,
	}
}

func (s *MemoryStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.resetAt) {
		c = &memoryCounter{resetAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.resetAt, nil
}

func (s *MemoryStore) Decr(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[key]; ok && c.count > 0 {
		c.count--
	}
	return nil
}

// GC removes expired windows. Wired to a cron job.
func (s *MemoryStore) GC() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, c := range s.counters {
		if !now.Before(c.resetAt) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}
