package passkey

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/platinummonkey/turnstile/pkg/auth"
)

// passkeyUser adapts a stored user and its credentials to webauthn.User
type passkeyUser struct {
	user        *auth.User
	credentials []webauthn.Credential
}

func newPasskeyUser(user *auth.User, stored []*auth.Credential) *passkeyUser {
	credentials := make([]webauthn.Credential, 0, len(stored))
	for _, c := range stored {
		credentials = append(credentials, toWebAuthnCredential(c))
	}
	return &passkeyUser{user: user, credentials: credentials}
}

// WebAuthnID is the user handle; it is the user id
func (u *passkeyUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *passkeyUser) WebAuthnName() string {
	return u.user.ID
}

func (u *passkeyUser) WebAuthnDisplayName() string {
	return u.user.Email
}

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func toWebAuthnCredential(c *auth.Credential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    true,
			UserVerified:   c.UserVerified,
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

func fromWebAuthnCredential(userID string, c *webauthn.Credential, createdAt time.Time) *auth.Credential {
	transports := make([]string, 0, len(c.Transport))
	for _, t := range c.Transport {
		transports = append(transports, string(t))
	}
	return &auth.Credential{
		ID:              c.ID,
		UserID:          userID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		AAGUID:          c.Authenticator.AAGUID,
		SignCount:       c.Authenticator.SignCount,
		Transports:      transports,
		DeviceType:      auth.DeviceTypeFor(c.Flags.BackupEligible),
		BackedUp:        c.Flags.BackupState,
		BackupEligible:  c.Flags.BackupEligible,
		UserVerified:    c.Flags.UserVerified,
		CreatedAt:       createdAt,
	}
}
