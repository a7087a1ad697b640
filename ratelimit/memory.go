package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in process memory. Suitable for a single
// instance or tests.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (s *MemoryStore) Increment(ctx context.Context, actorID, action string, now time.Time, length time.Duration) (int, time.Time, error) {
	key := actorID + "\x00" + action

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !w.resetAt.After(now) {
		w = &window{resetAt: now.Add(length)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

// Purge drops windows that expired at or before now and returns how many
// were removed.
func (s *MemoryStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, w := range s.windows {
		if !w.resetAt.After(now) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}
