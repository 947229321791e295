package cache

import "errors"

var (
	// ErrCacheMiss is returned by Backend.Get when the key is absent or expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidKey is returned for empty keys
	ErrInvalidKey = errors.New("invalid cache key")
)
