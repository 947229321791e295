package middleware

import (
	"net/http"

	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/contextkeys"
	"github.com/platinummonkey/turnstile/pkg/httputil"
	"github.com/platinummonkey/turnstile/pkg/observability"
)

// Cookie names shared with the gateway handlers
const (
	AccessCookie    = "access"
	RefreshCookie   = "refresh"
	ChallengeCookie = "challenge"
)

// Messages rendered for rejected session tokens
const (
	MsgUnauthorized   = "Unauthorized"
	MsgSessionExpired = "Session expired"
)

// AuthMiddleware authenticates requests with the session token in the access cookie
type AuthMiddleware struct {
	tokens *auth.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AccessCookie)
		if err != nil || cookie.Value == "" {
			httputil.WriteUnauthorized(w, MsgUnauthorized)
			return
		}

		result := m.tokens.Verify(cookie.Value)
		if result.Expired {
			httputil.WriteUnauthorized(w, MsgSessionExpired)
			return
		}
		if !result.Valid {
			httputil.WriteUnauthorized(w, MsgUnauthorized)
			return
		}

		authCtx := &auth.AuthContext{UserID: result.Claims.ID}
		if result.Claims.ExpiresAt != nil {
			authCtx.ExpiresAt = result.Claims.ExpiresAt.Time.UTC()
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = observability.WithUserID(ctx, authCtx.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := contextkeys.GetAuth(r.Context())
	if !ok {
		return nil
	}
	return authCtx
}
