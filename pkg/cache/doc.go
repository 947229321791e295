// Package cache provides the byte-level cache backends and the read-through
// SessionCache of user projections built on them.
//
// Two backends implement Backend:
//
//   - MemoryBackend: a bounded in-process LRU with per-entry expiry
//   - RedisBackend: go-redis with a key prefix, shared across replicas
//
// NewBackend picks one from Config.Provider. Both support CompareAndDelete,
// which the challenge ledger uses to consume records at most once.
//
// SessionCache sits in front of the credential store:
//
//	sessions := cache.NewSessionCache(backend, store, 5*time.Minute, logger, metrics)
//	user, err := sessions.Get(ctx, userID)
//	...
//	sessions.Invalidate(ctx, userID) // after every profile mutation
//
// Backend failures on the read path are logged and treated as misses.
package cache
