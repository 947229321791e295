package cache

import "time"

// Cache providers
const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
)

// Config selects and tunes the cache backend
type Config struct {
	Provider   string
	RedisURL   string
	KeyPrefix  string
	MaxEntries int
	SessionTTL time.Duration

	// ChallengeMaxEntries bounds each in-memory challenge LRU
	ChallengeMaxEntries int
}

// DefaultConfig returns an in-memory cache with a five minute session TTL
func DefaultConfig() Config {
	return Config{
		Provider:            ProviderMemory,
		KeyPrefix:           "turnstile:",
		MaxEntries:          10000,
		SessionTTL:          5 * time.Minute,
		ChallengeMaxEntries: 10000,
	}
}
