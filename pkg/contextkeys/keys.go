// Package contextkeys defines every context key used across the service.
//
// Keys live in one place so producers and consumers agree on the stored type:
//
//	ctx = contextkeys.WithAuth(ctx, authCtx)
//	authCtx, ok := contextkeys.GetAuth(ctx)
package contextkeys

import (
	"context"

	"github.com/platinummonkey/turnstile/pkg/auth"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext.
	// Set by middleware.AuthMiddleware, read by protected handlers.
	AuthKey Key = "auth_context"

	// RequestIDKey contains the request id string.
	// Set by httputil.RequestIDMiddleware, read by the logger.
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user id string.
	// Set by middleware.AuthMiddleware, read by the logger.
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger.
	// Set by httputil.LoggingMiddleware.
	LoggerKey Key = "logger"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx *auth.AuthContext) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// GetAuth retrieves authentication context from the context
func GetAuth(ctx context.Context) (*auth.AuthContext, bool) {
	authCtx, ok := ctx.Value(AuthKey).(*auth.AuthContext)
	return authCtx, ok && authCtx != nil
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
