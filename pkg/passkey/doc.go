// Package passkey runs WebAuthn registration and authentication ceremonies on
// top of github.com/go-webauthn/webauthn.
//
// Ceremony state between the begin and finish steps lives in a
// challenge.Ledger, never on the user record. A registration is bound to the
// user id; an authentication is bound to the challenge value, which the
// gateway hands to the browser in a cookie.
//
//	ceremony, err := passkey.NewCeremony(cfg, store, ledger, logger, metrics)
//	creation, err := ceremony.BeginRegistration(ctx, userID)
//	cred, err := ceremony.FinishRegistration(ctx, userID, attestationJSON)
//
//	opts, err := ceremony.BeginLogin(ctx, email) // email may be empty
//	result, err := ceremony.FinishLogin(ctx, cookieChallenge, assertionJSON)
package passkey
