package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL is the lifetime of a session token
	DefaultAccessTTL = 30 * time.Minute
	// DefaultRefreshTTL is the lifetime of a refresh token
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Claims is the minimal claim set carried by session and refresh tokens
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// VerifyResult reports the outcome of a token check. Expired is reported
// separately so callers can distinguish "session expired" from "unauthorized".
type VerifyResult struct {
	Valid   bool
	Expired bool
	Claims  *Claims
}

// TokenConfig configures the TokenService
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenService issues and verifies HS256 signed session and refresh tokens
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenOption customizes a TokenService
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and verifying tokens
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a token service
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, fmt.Errorf("access token secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("refresh token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	s := &TokenService{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the session token lifetime
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the refresh token lifetime
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Issue signs a session token for subjectID
func (s *TokenService) Issue(subjectID string) (string, error) {
	token, err := s.sign(subjectID, s.accessSecret, s.accessTTL, "")
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

// Verify checks a session token. It fails closed.
func (s *TokenService) Verify(token string) VerifyResult {
	return s.verify(token, s.accessSecret)
}

// IssueRefresh signs a refresh token for subjectID with the refresh secret
func (s *TokenService) IssueRefresh(subjectID string) (string, error) {
	token, err := s.sign(subjectID, s.refreshSecret, s.refreshTTL, uuid.NewString())
	if err != nil {
		return "", fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return token, nil
}

// VerifyRefresh checks a refresh token
func (s *TokenService) VerifyRefresh(token string) VerifyResult {
	return s.verify(token, s.refreshSecret)
}

func (s *TokenService) sign(subjectID string, secret []byte, ttl time.Duration, tokenID string) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("subject is required")
	}

	now := s.now()
	claims := Claims{
		ID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *TokenService) verify(tokenString string, secret []byte) VerifyResult {
	if tokenString == "" {
		return VerifyResult{}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		// Claims are validated after the signature, so expiry implies a genuine token
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifyResult{Expired: true}
		}
		return VerifyResult{}
	}

	if !token.Valid || claims.ID == "" {
		return VerifyResult{}
	}

	return VerifyResult{Valid: true, Claims: claims}
}
