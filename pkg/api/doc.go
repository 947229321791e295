// Package api provides the HTTP gateway for turnstile accounts.
//
// # Overview
//
// The gateway maps password and passkey ceremonies onto cookie-carrying
// JSON endpoints. Every response uses the envelope
//
//	{"success": true, "data": {...}, "errors": [], "timestamp": "...", "message": "success"}
//
// and every failure is rendered by httputil.WriteError from an
// apperror.Error, or as an opaque 500 for anything else.
//
// # Endpoints
//
//	POST   /auth/register                 - Create a password account
//	POST   /auth/login                    - Password login
//	GET    /auth/me                       - Current user (cached)
//	PATCH  /auth/me                       - Update profile fields
//	POST   /auth/me/avatar                - Upload a profile image
//	POST   /auth/refresh                  - Exchange the refresh cookie for a new access cookie
//	POST   /auth/logout                   - Clear session cookies
//	POST   /auth/passkey/register         - Passkey creation options
//	POST   /auth/passkey/register-verify  - Verify an attestation and store the passkey
//	POST   /auth/passkey/login            - Passkey request options, sets the challenge cookie
//	POST   /auth/passkey/login-verify     - Verify an assertion and start a session
//
// Health probes are mounted under /health when a checker is configured.
//
// # Cookies
//
// Sessions are carried in three httpOnly, SameSite=Strict cookies:
//
//	access     short-lived JWT, path /
//	refresh    long-lived JWT, path /auth/refresh
//	challenge  pending passkey login challenge, cleared by login-verify
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		Store:    store,
//		Tokens:   tokens,
//		Sessions: sessions,
//		Passkeys: ceremony,
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
