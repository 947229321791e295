package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryBackend is a bounded in-process LRU. The LRU bounds the entry count;
// expiry is tracked per entry since callers choose a TTL per Set.
type MemoryBackend struct {
	mu    sync.Mutex
	cache *lru.LRU[string, memoryEntry]
	now   func() time.Time
}

// NewMemoryBackend creates an LRU holding at most maxEntries keys
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	if maxEntries < 10 {
		maxEntries = 10
	}
	return &MemoryBackend{
		// A zero TTL disables the LRU's own expiry
		cache: lru.NewLRU[string, memoryEntry](maxEntries, nil, 0),
		now:   time.Now,
	}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if entry.expired(m.now()) {
		m.cache.Remove(key)
		return nil, ErrCacheMiss
	}
	return bytes.Clone(entry.data), nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	entry := memoryEntry{data: bytes.Clone(value)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(key, entry)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(key)
	return nil
}

func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
	return nil
}

func (m *MemoryBackend) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache.Peek(key)
	if !ok || entry.expired(m.now()) || !bytes.Equal(entry.data, expected) {
		return false, nil
	}
	m.cache.Remove(key)
	return true, nil
}

// Len returns the number of stored entries, including expired ones not yet evicted
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
