package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/cache"
	"github.com/platinummonkey/turnstile/pkg/httputil"
	"github.com/platinummonkey/turnstile/pkg/middleware"
	"github.com/platinummonkey/turnstile/pkg/objectstore"
	"github.com/platinummonkey/turnstile/pkg/observability"
	"github.com/platinummonkey/turnstile/pkg/passkey"
	"github.com/platinummonkey/turnstile/pkg/presence"
	"github.com/platinummonkey/turnstile/pkg/validation"
)

// Dependencies wires the gateway to its collaborators.
// Avatars, Limiter, ClientIP, Presence, Health and Metrics are optional and may be left nil.
// A nil ClientIP records and limits by connection address.
type Dependencies struct {
	Store     UserStore
	Tokens    *auth.TokenService
	Sessions  *cache.SessionCache
	Passkeys  *passkey.Ceremony
	Validator *validation.Validator
	Avatars   AvatarUploader
	Limiter   middleware.Limiter
	ClientIP  *auth.ClientIPResolver
	Presence  *presence.Hub
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
	Logger    *observability.Logger

	CookieSecure bool
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	auth    *AuthHandlers
}

// NewServer creates a new API server with the full middleware chain
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewValidator(nil)
	}
	if deps.MaxBodyBytes <= 0 {
		// Room for a full avatar plus multipart framing
		deps.MaxBodyBytes = objectstore.MaxAvatarBytes + httputil.DefaultMaxBodyBytes
	}

	s := &Server{
		router: mux.NewRouter(),
		auth:   NewAuthHandlers(deps),
	}
	s.setupRoutes(deps)

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(deps.CORSOrigins),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(deps.MaxBodyBytes),
	)(s.router)
	s.handler = observability.TracingHandler(s.handler, "turnstile")

	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(deps Dependencies) {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteFailure(w, http.StatusNotFound, "not found", nil)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteFailure(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	s.router.Use(observability.RouteSpanName)
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	if deps.Health != nil {
		observability.RegisterHealthRoutes(s.router, deps.Health)
	}

	s.auth.RegisterRoutes(s.router)
}

// Router exposes the underlying router for additional registrations
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
