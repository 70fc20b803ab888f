package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryStore struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	maxEntries int
}

// NewMemoryStore keeps fingerprints in process memory. When maxEntries is
// positive the oldest entries are evicted once the store grows past it.
func NewMemoryStore(maxEntries int) StoreProvider {
	return &memoryStore{
		seen:       make(map[string]time.Time),
		maxEntries: maxEntries,
	}
}

func (s *memoryStore) MarkSeen(ctx context.Context, fingerprints []string, seenAt time.Time) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]bool, len(fingerprints))
	stamped := make(map[string]struct{}, len(fingerprints))
	for i, fp := range fingerprints {
		if _, ok := s.seen[fp]; ok {
			continue
		}
		s.seen[fp] = seenAt
		stamped[fp] = struct{}{}
		fresh[i] = true
	}

	s.evictOverflow(stamped)
	return fresh, nil
}

// evictOverflow drops the oldest entries until the store fits maxEntries,
// skipping the ones stamped by the running MarkSeen call.
func (s *memoryStore) evictOverflow(keep map[string]struct{}) {
	if s.maxEntries <= 0 || len(s.seen) <= s.maxEntries {
		return
	}

	type entry struct {
		fp string
		at time.Time
	}
	candidates := make([]entry, 0, len(s.seen))
	for fp, at := range s.seen {
		if _, ok := keep[fp]; ok {
			continue
		}
		candidates = append(candidates, entry{fp, at})
	}
	slices.SortFunc(candidates, func(a, b entry) int {
		return a.at.Compare(b.at)
	})

	overflow := len(s.seen) - s.maxEntries
	for i := 0; i < overflow && i < len(candidates); i++ {
		delete(s.seen, candidates[i].fp)
	}
}

func (s *memoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for fp, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, fp)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen), nil
}

func (s *memoryStore) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.seen)
	clear(s.seen)
	return n, nil
}
