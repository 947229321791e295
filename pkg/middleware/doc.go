// Package middleware provides HTTP middleware for session authentication,
// per-client rate limiting and the metrics endpoint guard.
//
// # Middleware Components
//
// AuthMiddleware: session token in the access cookie
//
//	authMW := middleware.NewAuthMiddleware(tokens)
//	protected.Use(authMW.Handler)
//	// 401 "Unauthorized" without a valid token, 401 "Session expired" once it lapses
//
// RateLimitMiddleware: keyed by client address
//
//	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{RequestsPerWindow: 300, WindowDuration: time.Minute})
//	resolver, _ := auth.NewClientIPResolver([]string{"10.0.0.0/8"})
//	router.Use(middleware.NewRateLimitMiddleware(limiter, resolver, logger).Handler)
//
// X-Forwarded-For is only honored when the connection comes from a trusted proxy.
//
// With a redis cache the window is shared across instances:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "turnstile:ratelimit")
//
// Redis errors fail open.
//
// BasicAuth: guards /metrics when credentials are configured
//
//	metricsHandler = middleware.BasicAuth("metrics", user, pass)(metricsHandler)
//
// # Related Packages
//
//   - pkg/auth: token verification and client address extraction
//   - pkg/httputil: response envelope
package middleware
