// Package httputil provides HTTP utilities for the gateway.
//
// # Envelope
//
// Every response body has the same shape:
//
//	{"success": true, "data": {...}, "errors": [], "timestamp": "...", "message": "..."}
//
// Success helpers:
//
//	httputil.WriteOK(w, "Login successful", user)
//	httputil.WriteCreated(w, "User registered", user)
//
// Errors go through a single boundary:
//
//	httputil.WriteError(w, r, err)
//
// Domain errors from pkg/apperror keep their status, message and field paths.
// Anything else is logged and rendered as a 500 with no detail.
//
// # Request Parsing
//
//	var req loginRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware(origins),
//		httputil.MaxBytesMiddleware(10<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: cookie authentication and rate limiting
package httputil
