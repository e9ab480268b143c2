package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps a sliding window of hit timestamps per key. Suitable for
// a single process; state resets on restart.
type MemoryStore struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitsByKey map[string][]time.Time
	maxKeys   int
}

func NewMemoryStore(maxHits int, window time.Duration) *MemoryStore {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &MemoryStore{
		maxHits:   maxHits,
		window:    window,
		hitsByKey: make(map[string][]time.Time),
		maxKeys:   5000,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	threshold := now.Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	hits := s.hitsByKey[key]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	if len(filtered) >= s.maxHits {
		retryAfter := filtered[0].Add(s.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		s.hitsByKey[key] = filtered
		return false, retryAfter, nil
	}

	filtered = append(filtered, now)
	s.hitsByKey[key] = filtered

	// Bound memory: sweep keys whose windows have fully lapsed.
	if len(s.hitsByKey) > s.maxKeys {
		for k, v := range s.hitsByKey {
			if len(v) == 0 || v[len(v)-1].Before(threshold) {
				delete(s.hitsByKey, k)
			}
		}
	}

	return true, 0, nil
}
