package passkey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/platinummonkey/turnstile/pkg/apperror"
	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/challenge"
	"github.com/platinummonkey/turnstile/pkg/observability"
)

// Metric labels
const (
	ceremonyRegistration   = "registration"
	ceremonyAuthentication = "authentication"
	stepBegin              = "begin"
	stepFinish             = "finish"
)

// Failure messages returned to clients
const (
	MsgChallengeMissing   = "challenge missing"
	MsgVerificationFailed = "verification failed"
	MsgUnknownCredential  = "unknown credential"
)

var (
	errChallengeMissing   = apperror.Unauthorized("challenge", MsgChallengeMissing)
	errVerificationFailed = apperror.Unauthorized("credential", MsgVerificationFailed)
	errUnknownCredential  = apperror.Unauthorized("credential", MsgUnknownCredential)
)

// CredentialStore is the persistence the ceremony needs
type CredentialStore interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
	ListCredentials(ctx context.Context, userID string) ([]*auth.Credential, error)
	AddCredential(ctx context.Context, cred *auth.Credential) error
	FindCredential(ctx context.Context, rawID []byte) (*auth.Credential, error)
	UpdateSignCount(ctx context.Context, rawID []byte, expected, next uint32, usedAt time.Time) (bool, error)
}

type passkeyProvider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type passkeyParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultPasskeyParser struct{}

func (defaultPasskeyParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultPasskeyParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// LoginOptions is the begin-login result. Challenge is the value the client
// must return in the challenge cookie.
type LoginOptions struct {
	Assertion *protocol.CredentialAssertion
	Challenge string
}

// LoginResult is a verified passkey login
type LoginResult struct {
	User       *auth.User
	Credential *auth.Credential
}

// Ceremony runs passkey registration and login
type Ceremony struct {
	cfg      Config
	provider passkeyProvider
	parser   passkeyParser
	store    CredentialStore
	ledger   *challenge.Ledger
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewCeremony builds a ceremony for the configured relying party. metrics may be nil.
func NewCeremony(cfg Config, store CredentialStore, ledger *challenge.Ledger, logger *observability.Logger, metrics *observability.Metrics) (*Ceremony, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := webauthn.New(&webauthn.Config{
		RPID:                  cfg.RPID,
		RPDisplayName:         cfg.RPDisplayName,
		RPOrigins:             cfg.RPOrigins,
		AttestationPreference: protocol.PreferNoAttestation,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementPreferred,
			UserVerification:        protocol.VerificationPreferred,
		},
		Timeouts: webauthn.TimeoutsConfig{
			Login:        webauthn.TimeoutConfig{Timeout: cfg.ChallengeTTL, TimeoutUVD: cfg.ChallengeTTL},
			Registration: webauthn.TimeoutConfig{Timeout: cfg.ChallengeTTL, TimeoutUVD: cfg.ChallengeTTL},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure webauthn: %w", err)
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Ceremony{
		cfg:      cfg,
		provider: provider,
		parser:   defaultPasskeyParser{},
		store:    store,
		ledger:   ledger,
		logger:   logger.WithField("component", "passkey"),
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// ChallengeTTL is how long a begun ceremony stays valid
func (c *Ceremony) ChallengeTTL() time.Duration {
	return c.ledger.TTL()
}

// BeginRegistration returns creation options for userID and records the
// registration challenge, replacing any earlier one for the same user.
func (c *Ceremony) BeginRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, error) {
	creation, err := c.beginRegistration(ctx, userID)
	c.metrics.RecordCeremony(ceremonyRegistration, stepBegin, err == nil)
	return creation, err
}

func (c *Ceremony) beginRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, error) {
	pu, err := c.loadPasskeyUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	opts := []webauthn.RegistrationOption{
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
	}
	if len(pu.credentials) > 0 {
		opts = append(opts, webauthn.WithExclusions(webauthn.Credentials(pu.credentials).CredentialDescriptors()))
	}

	creation, session, err := c.provider.BeginRegistration(pu, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to begin passkey registration: %w", err)
	}

	if err := c.issue(ctx, challenge.KindRegistration, userID, session); err != nil {
		return nil, err
	}

	c.logger.WithField("user_id", userID).Debug("Passkey registration started")
	return creation, nil
}

// FinishRegistration verifies an attestation response against the user's
// outstanding registration challenge and stores the new credential.
func (c *Ceremony) FinishRegistration(ctx context.Context, userID string, attestationJSON []byte) (*auth.Credential, error) {
	cred, err := c.finishRegistration(ctx, userID, attestationJSON)
	c.metrics.RecordCeremony(ceremonyRegistration, stepFinish, err == nil)
	return cred, err
}

func (c *Ceremony) finishRegistration(ctx context.Context, userID string, attestationJSON []byte) (*auth.Credential, error) {
	logger := c.logger.WithField("user_id", userID)

	parsed, err := c.parser.ParseCredentialCreationResponseBytes(attestationJSON)
	if err != nil {
		logger.WithError(err).Debug("Unparseable attestation response")
		return nil, errVerificationFailed.Wrap(err)
	}

	session, err := c.consume(ctx, challenge.KindRegistration, userID, parsed.Response.CollectedClientData.Challenge)
	if err != nil {
		return nil, err
	}

	pu, err := c.loadPasskeyUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	created, err := c.provider.CreateCredential(pu, *session, parsed)
	if err != nil {
		logger.WithError(err).Info("Passkey attestation rejected")
		return nil, errVerificationFailed.Wrap(err)
	}

	cred := fromWebAuthnCredential(userID, created, c.now())
	if err := c.store.AddCredential(ctx, cred); err != nil {
		return nil, err
	}

	logger.WithField("device_type", cred.DeviceType).Info("Passkey registered")
	return cred, nil
}

// BeginLogin returns request options. With an email the allow-list is
// narrowed to that user's credentials; without one the login is discoverable.
func (c *Ceremony) BeginLogin(ctx context.Context, email string) (*LoginOptions, error) {
	opts, err := c.beginLogin(ctx, email)
	c.metrics.RecordCeremony(ceremonyAuthentication, stepBegin, err == nil)
	return opts, err
}

func (c *Ceremony) beginLogin(ctx context.Context, email string) (*LoginOptions, error) {
	uv := webauthn.WithUserVerification(protocol.UserVerificationRequirement(c.cfg.LoginUserVerification))

	var (
		assertion *protocol.CredentialAssertion
		session   *webauthn.SessionData
		err       error
	)

	owner, err := c.loginOwner(ctx, email)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		assertion, session, err = c.provider.BeginDiscoverableLogin(uv)
	} else {
		assertion, session, err = c.provider.BeginLogin(owner, uv)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to begin passkey login: %w", err)
	}

	if err := c.issue(ctx, challenge.KindAuthentication, session.Challenge, session); err != nil {
		return nil, err
	}

	return &LoginOptions{Assertion: assertion, Challenge: session.Challenge}, nil
}

// loginOwner resolves the user whose credentials narrow the allow-list. An
// unknown email or a user without passkeys yields nil: a discoverable login.
func (c *Ceremony) loginOwner(ctx context.Context, email string) (*passkeyUser, error) {
	if email == "" {
		return nil, nil
	}
	user, err := c.store.GetUserByEmail(ctx, email)
	if apperror.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stored, err := c.store.ListCredentials(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}
	return newPasskeyUser(user, stored), nil
}

// FinishLogin verifies an assertion against the challenge carried in the
// client's cookie, advances the credential's sign counter and returns the owner.
func (c *Ceremony) FinishLogin(ctx context.Context, cookieChallenge string, assertionJSON []byte) (*LoginResult, error) {
	result, err := c.finishLogin(ctx, cookieChallenge, assertionJSON)
	c.metrics.RecordCeremony(ceremonyAuthentication, stepFinish, err == nil)
	c.metrics.RecordAuthAttempt(string(auth.SessionMethodPasskey), err == nil)
	return result, err
}

func (c *Ceremony) finishLogin(ctx context.Context, cookieChallenge string, assertionJSON []byte) (*LoginResult, error) {
	if cookieChallenge == "" {
		return nil, errChallengeMissing
	}

	parsed, err := c.parser.ParseCredentialRequestResponseBytes(assertionJSON)
	if err != nil {
		c.logger.WithError(err).Debug("Unparseable assertion response")
		return nil, errVerificationFailed.Wrap(err)
	}

	session, err := c.consume(ctx, challenge.KindAuthentication, cookieChallenge, parsed.Response.CollectedClientData.Challenge)
	if err != nil {
		return nil, err
	}

	stored, err := c.store.FindCredential(ctx, parsed.RawID)
	if apperror.IsNotFound(err) {
		return nil, errUnknownCredential
	}
	if err != nil {
		return nil, err
	}

	owner, err := c.loadPasskeyUser(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	logger := c.logger.WithField("user_id", owner.user.ID)

	var validated *webauthn.Credential
	if len(session.UserID) > 0 {
		validated, err = c.provider.ValidateLogin(owner, *session, parsed)
	} else {
		handler := func(rawID, userHandle []byte) (webauthn.User, error) {
			if !bytes.Equal(userHandle, owner.WebAuthnID()) {
				return nil, fmt.Errorf("user handle does not own credential")
			}
			return owner, nil
		}
		_, validated, err = c.provider.ValidatePasskeyLogin(handler, *session, parsed)
	}
	if err != nil {
		logger.WithError(err).Info("Passkey assertion rejected")
		return nil, errVerificationFailed.Wrap(err)
	}

	if validated.Authenticator.CloneWarning {
		c.metrics.RecordCounterRegression()
		logger.WithFields(map[string]interface{}{
			"stored_count":   stored.SignCount,
			"asserted_count": parsed.Response.AuthenticatorData.Counter,
		}).Warn("Passkey sign counter did not increase")
		if c.cfg.RejectCounterRegression {
			return nil, errVerificationFailed
		}
	}

	usedAt := c.now()
	next := validated.Authenticator.SignCount
	updated, err := c.store.UpdateSignCount(ctx, stored.ID, stored.SignCount, next, usedAt)
	if err != nil {
		return nil, err
	}
	if !updated {
		logger.Warn("Passkey sign counter changed concurrently")
		if c.cfg.RejectCounterRegression {
			return nil, errVerificationFailed
		}
	} else {
		stored.SignCount = next
		stored.LastUsedAt = &usedAt
	}

	logger.Info("Passkey login verified")
	return &LoginResult{
		User:       owner.user.Sanitized(),
		Credential: stored,
	}, nil
}

func (c *Ceremony) loadPasskeyUser(ctx context.Context, userID string) (*passkeyUser, error) {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stored, err := c.store.ListCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newPasskeyUser(user, stored), nil
}

func (c *Ceremony) issue(ctx context.Context, kind challenge.Kind, subject string, session *webauthn.SessionData) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode webauthn session: %w", err)
	}
	return c.ledger.Issue(ctx, kind, subject, session.Challenge, payload)
}

// consume maps ledger failures onto the client-facing auth errors
func (c *Ceremony) consume(ctx context.Context, kind challenge.Kind, subject, presented string) (*webauthn.SessionData, error) {
	rec, err := c.ledger.Consume(ctx, kind, subject, presented)
	switch {
	case errors.Is(err, challenge.ErrChallengeMissing):
		return nil, errChallengeMissing
	case errors.Is(err, challenge.ErrChallengeMismatch):
		return nil, errVerificationFailed
	case err != nil:
		return nil, err
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(rec.Payload, &session); err != nil {
		return nil, fmt.Errorf("failed to decode webauthn session: %w", err)
	}
	return &session, nil
}
