package viewcache

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/fieldbooks/internal/clock"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps views in process. It is used when redis is not configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	clock    clock.Clock
	entries  map[string]memoryEntry
	versions map[string]int64
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &MemoryStore{
		clock:    c,
		entries:  make(map[string]memoryEntry),
		versions: make(map[string]int64),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !s.clock.Now().Before(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Version(_ context.Context, versionKey string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[versionKey], nil
}

// Bump increments the group version and drops entries that can no longer be addressed.
func (s *MemoryStore) Bump(_ context.Context, versionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[versionKey]++
	now := s.clock.Now()
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	return nil
}
