package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store implementation. It backs single-instance
// deployments and tests; multi-instance deployments must use Redis so that
// revocation is visible cluster-wide.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	clock func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	count     int64
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]memoryEntry),
		clock: time.Now,
	}
}

// WithClock overrides the time source, used by tests to simulate expiry.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Get retrieves a live value by key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// GetDel atomically retrieves and removes a value. Exactly one of any set of
// concurrent callers observes the value.
func (s *MemoryStore) GetDel(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(key)
	if !ok {
		return nil, false, nil
	}
	delete(s.data, key)
	return entry.value, true, nil
}

// Set stores a value with the supplied TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry := time.Time{}
	if ttl > 0 {
		expiry = s.clock().Add(ttl)
	}
	s.data[key] = memoryEntry{value: append([]byte(nil), value...), expiresAt: expiry}
	return nil
}

// Delete removes keys, ignoring missing entries.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// IncrementWithTTL increments a windowed counter, starting a new window when
// the previous one has elapsed.
func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	entry, ok := s.data[key]
	if !ok || (!entry.expiresAt.IsZero() && now.After(entry.expiresAt)) {
		entry = memoryEntry{expiresAt: now.Add(window)}
	}
	entry.count++
	s.data[key] = entry

	return entry.count, entry.expiresAt.Sub(now), nil
}

func (s *MemoryStore) liveLocked(key string) (memoryEntry, bool) {
	entry, ok := s.data[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && s.clock().After(entry.expiresAt) {
		delete(s.data, key)
		return memoryEntry{}, false
	}
	return entry, true
}
