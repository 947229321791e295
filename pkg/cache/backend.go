package cache

import (
	"context"
	"fmt"
	"time"
)

// Backend is a byte-oriented key/value cache with per-key expiry
type Backend interface {
	// Get returns ErrCacheMiss when the key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl <= 0 never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key owned by this backend
	Clear(ctx context.Context) error
	// CompareAndDelete removes key only while it still holds expected.
	// It reports whether the key was removed.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewBackend builds the backend named by cfg.Provider
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Provider {
	case "", ProviderMemory:
		return NewMemoryBackend(cfg.MaxEntries), nil
	case ProviderRedis:
		return NewRedisBackend(ctx, cfg.RedisURL, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Provider)
	}
}
