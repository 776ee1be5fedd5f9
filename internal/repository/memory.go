package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps slots in process memory. Used as the Redis fallback and in tests.
type MemoryStore struct {
	values sync.Map
	now    func() time.Time

	rlMu       sync.Mutex
	rateLimits map[string]*rateLimitEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, rateLimits: make(map[string]*rateLimitEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, ok := s.values.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(memoryEntry)
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.values.Delete(key)
		return nil, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.values.Store(key, entry)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.values.Delete(key)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// CheckRateLimit counts hits per key in a fixed window; the whole check runs under rlMu.
func (s *MemoryStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := s.now()

	s.rlMu.Lock()
	defer s.rlMu.Unlock()

	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		s.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
