package cache

import (
	"context"
	"sync"
	"time"

	"depthscope/internal/model"
)

const defaultMaxEntries = 1024

// MemoryStore is an in-process Store with a soft entry cap. Once the cap is
// exceeded the oldest entries are evicted.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[Key]memoryEntry
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	result    model.DepthResult
	fetchedAt time.Time
}

// NewMemoryStore builds a MemoryStore. maxEntries <= 0 selects the default
// cap; now == nil selects the wall clock.
func NewMemoryStore(maxEntries int, now func() time.Time) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries:    make(map[Key]memoryEntry),
		maxEntries: maxEntries,
		now:        now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (model.DepthResult, time.Duration, bool) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return model.DepthResult{}, 0, false
	}
	return entry.result, s.now().Sub(entry.fetchedAt), true
}

func (s *MemoryStore) Put(_ context.Context, key Key, result model.DepthResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{result: result, fetchedAt: s.now()}
	for len(s.entries) > s.maxEntries {
		s.evictOldestLocked()
	}
}

func (s *MemoryStore) evictOldestLocked() {
	var oldestKey Key
	var oldest time.Time
	first := true
	for key, entry := range s.entries {
		if first || entry.fetchedAt.Before(oldest) {
			oldestKey, oldest = key, entry.fetchedAt
			first = false
		}
	}
	if !first {
		delete(s.entries, oldestKey)
	}
}

// Len reports the current entry count.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
