package passkey

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-webauthn/webauthn/protocol"
)

// Config controls the WebAuthn relying party
type Config struct {
	RPID          string        `env:"TURNSTILE_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPDisplayName string        `env:"TURNSTILE_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Turnstile"`
	RPOrigins     []string      `env:"TURNSTILE_WEBAUTHN_RP_ORIGINS"      envDefault:"http://localhost:5173" envSeparator:","`
	ChallengeTTL  time.Duration `env:"TURNSTILE_WEBAUTHN_CHALLENGE_TTL"   envDefault:"5m"`

	// RejectCounterRegression fails logins whose sign counter did not increase
	RejectCounterRegression bool `env:"TURNSTILE_WEBAUTHN_REJECT_COUNTER_REGRESSION" envDefault:"true"`

	// LoginUserVerification is sent as userVerification on login options
	LoginUserVerification string `env:"TURNSTILE_WEBAUTHN_LOGIN_USER_VERIFICATION" envDefault:"required"`
}

// DefaultConfig returns the configuration used when no variables are set
func DefaultConfig() Config {
	return Config{
		RPID:                    "localhost",
		RPDisplayName:           "Turnstile",
		RPOrigins:               []string{"http://localhost:5173"},
		ChallengeTTL:            5 * time.Minute,
		RejectCounterRegression: true,
		LoginUserVerification:   string(protocol.VerificationRequired),
	}
}

// LoadConfigFromEnv parses TURNSTILE_WEBAUTHN_* variables over the defaults
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse webauthn config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the relying party settings
func (c Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("webauthn RP ID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("webauthn RP display name is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one webauthn origin is required")
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("webauthn challenge TTL must be positive")
	}
	switch protocol.UserVerificationRequirement(c.LoginUserVerification) {
	case protocol.VerificationRequired, protocol.VerificationPreferred, protocol.VerificationDiscouraged:
	default:
		return fmt.Errorf("invalid login user verification %q", c.LoginUserVerification)
	}
	return nil
}
