package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/observability"
)

// sessionCacheName labels the session cache in metrics
const sessionCacheName = "session"

// loadTimeout bounds a shared load once it is detached from its callers
const loadTimeout = 5 * time.Second

// UserLoader loads the authoritative user record on a cache miss
type UserLoader interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
}

// SessionCache is a read-through cache of PublicUser projections keyed by user id
type SessionCache struct {
	backend Backend
	loader  UserLoader
	ttl     time.Duration
	group   singleflight.Group
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewSessionCache creates a read-through cache. metrics may be nil.
func NewSessionCache(backend Backend, loader UserLoader, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultConfig().SessionTTL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &SessionCache{
		backend: backend,
		loader:  loader,
		ttl:     ttl,
		logger:  logger.WithField("component", "session_cache"),
		metrics: metrics,
	}
}

// UserKey is the cache key of a user projection
func UserKey(userID string) string {
	return "user:" + userID
}

// Get returns the user's projection, loading and caching it on a miss.
// Loader errors, including not-found, are returned unchanged.
func (c *SessionCache) Get(ctx context.Context, userID string) (*auth.PublicUser, error) {
	key := UserKey(userID)

	if user, ok := c.lookup(ctx, key); ok {
		c.metrics.RecordCacheHit(sessionCacheName)
		return user, nil
	}
	c.metrics.RecordCacheMiss(sessionCacheName)

	// The flight outlives any single caller; each caller still honors its own ctx
	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		user, err := c.loader.GetUser(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		public := user.Public()
		c.store(loadCtx, key, public)
		return public, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// Callers sharing a flight must not share the pointer
	shared := *res.Val.(*auth.PublicUser)
	return &shared, nil
}

// Invalidate drops the user's projection so the next Get reloads it
func (c *SessionCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.backend.Delete(ctx, UserKey(userID)); err != nil {
		c.metrics.RecordCacheError(sessionCacheName, "delete")
		return err
	}
	return nil
}

func (c *SessionCache) lookup(ctx context.Context, key string) (*auth.PublicUser, bool) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.metrics.RecordCacheError(sessionCacheName, "get")
			c.logger.WithError(err).WithField("key", key).Warn("Session cache read failed, treating as miss")
		}
		return nil, false
	}

	var user auth.PublicUser
	if err := json.Unmarshal(data, &user); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Discarding corrupt session cache entry")
		if delErr := c.backend.Delete(ctx, key); delErr != nil {
			c.logger.WithError(delErr).Debug("Failed to delete corrupt entry")
		}
		return nil, false
	}
	return &user, true
}

func (c *SessionCache) store(ctx context.Context, key string, user *auth.PublicUser) {
	data, err := json.Marshal(user)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode session cache entry")
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.metrics.RecordCacheError(sessionCacheName, "set")
		c.logger.WithError(err).WithField("key", key).Warn("Session cache write failed")
	}
}
