// Package auth holds the identity model and the stateless primitives of the
// authentication service.
//
// # Overview
//
// The package has no storage or transport dependencies. It defines the
// records every other layer passes around and the pure functions that
// protect them:
//
//	User        durable account; PasswordHash is never serialized
//	PublicUser  projection returned to clients and cached per user id
//	Credential  registered WebAuthn passkey with its sign counter
//	Session     append-only audit entry for a successful authentication
//
// # Passwords
//
// Passwords are hashed with argon2id and encoded in PHC string format so the
// cost parameters travel with the hash:
//
//	hash, err := auth.HashPassword("correct horse battery")
//	ok := auth.VerifyPassword(hash, candidate)
//
// VerifyPassword is a pure function of (hash, candidate). It does not need a
// loaded user record and compares in constant time.
//
// # Tokens
//
// TokenService signs HS256 JWTs carrying {id: <user id>}. Session tokens
// default to 30 minutes; refresh tokens use a separate secret and default to
// 30 days.
//
//	svc, _ := auth.NewTokenService(auth.TokenConfig{
//		AccessSecret:  []byte(cfg.JWTSecret),
//		RefreshSecret: []byte(cfg.RefreshSecret),
//	})
//	token, _ := svc.Issue(user.ID)
//	res := svc.Verify(token)
//	switch {
//	case res.Valid:
//		// res.Claims.ID is the user id
//	case res.Expired:
//		// session expired
//	default:
//		// unauthorized
//	}
//
// Verification fails closed. An expired token is reported as Expired only
// when its signature checks out.
//
// # Audit
//
// NewSessionFromRequest captures the client address and user agent of the
// request that authenticated. ClientIPResolver reads forwarding headers only
// from configured trusted proxies.
package auth
