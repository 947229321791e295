// Package challenge keeps the short-lived WebAuthn challenges handed out at
// the start of a ceremony and consumes each of them at most once.
//
// Records live in a cache.Backend under "challenge:<kind>:<subject>". A
// registration challenge is keyed by user id; an authentication challenge is
// keyed by the challenge value itself, which also travels in the client's
// challenge cookie.
//
// With the in-memory cache, NewMemoryLedger keeps each kind in its own LRU so
// a burst of anonymous login starts cannot evict pending registrations.
//
//	ledger := challenge.NewLedger(backend, 5*time.Minute, logger)
//	_ = ledger.Issue(ctx, challenge.KindRegistration, userID, value, sessionJSON)
//	rec, err := ledger.Consume(ctx, challenge.KindRegistration, userID, presented)
package challenge
