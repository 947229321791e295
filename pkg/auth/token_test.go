package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestTokenService(t *testing.T, now *time.Time) *TokenService {
	t.Helper()

	svc, err := NewTokenService(TokenConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	}, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return svc
}

func TestNewTokenService_RequiresSecrets(t *testing.T) {
	tests := []struct {
		name string
		cfg  TokenConfig
	}{
		{"missing access secret", TokenConfig{RefreshSecret: []byte("r")}},
		{"missing refresh secret", TokenConfig{AccessSecret: []byte("a")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTokenService(tt.cfg); err == nil {
				t.Error("NewTokenService() expected error")
			}
		})
	}
}

func TestNewTokenService_Defaults(t *testing.T) {
	svc, err := NewTokenService(TokenConfig{AccessSecret: []byte("a"), RefreshSecret: []byte("r")})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if svc.AccessTTL() != 30*time.Minute {
		t.Errorf("AccessTTL() = %v, want 30m", svc.AccessTTL())
	}
	if svc.RefreshTTL() != 30*24*time.Hour {
		t.Errorf("RefreshTTL() = %v, want 720h", svc.RefreshTTL())
	}
}

func TestTokenService_IssueVerify(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, &now)

	token, err := svc.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	res := svc.Verify(token)
	if !res.Valid || res.Expired {
		t.Fatalf("Verify() = %+v, want valid", res)
	}
	if res.Claims.ID != "user-1" {
		t.Errorf("Claims.ID = %q, want user-1", res.Claims.ID)
	}
	if res.Claims.Subject != "user-1" {
		t.Errorf("Claims.Subject = %q, want user-1", res.Claims.Subject)
	}
}

func TestTokenService_Expiry(t *testing.T) {
	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := issuedAt
	svc := newTestTokenService(t, &now)

	token, err := svc.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	now = issuedAt.Add(29 * time.Minute)
	if res := svc.Verify(token); !res.Valid {
		t.Errorf("Verify() before expiry = %+v, want valid", res)
	}

	now = issuedAt.Add(30*time.Minute + time.Second)
	res := svc.Verify(token)
	if res.Valid {
		t.Error("Verify() after expiry reported valid")
	}
	if !res.Expired {
		t.Error("Verify() after expiry did not report expired")
	}
}

func TestTokenService_FailsClosed(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, &now)

	other, err := NewTokenService(TokenConfig{
		AccessSecret:  []byte("someone-else"),
		RefreshSecret: []byte("someone-else-refresh"),
	}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	forged, _ := other.Issue("user-1")

	valid, _ := svc.Issue("user-1")
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + ".c2lnbmF0dXJl"

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		ID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", forged},
		{"tampered signature", tampered},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Verify(tt.token)
			if res.Valid || res.Expired || res.Claims != nil {
				t.Errorf("Verify() = %+v, want invalid", res)
			}
		})
	}
}

func TestTokenService_ExpiredForgeryIsNotReportedExpired(t *testing.T) {
	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := issuedAt
	svc := newTestTokenService(t, &now)

	other, _ := NewTokenService(TokenConfig{
		AccessSecret:  []byte("someone-else"),
		RefreshSecret: []byte("someone-else-refresh"),
	}, WithClock(func() time.Time { return issuedAt }))
	forged, _ := other.Issue("user-1")

	now = issuedAt.Add(time.Hour)
	if res := svc.Verify(forged); res.Expired {
		t.Error("forged token reported as expired")
	}
}

func TestTokenService_RefreshIsIndependent(t *testing.T) {
	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := issuedAt
	svc := newTestTokenService(t, &now)

	refresh, err := svc.IssueRefresh("user-1")
	if err != nil {
		t.Fatalf("IssueRefresh() error = %v", err)
	}
	access, _ := svc.Issue("user-1")

	if res := svc.Verify(refresh); res.Valid {
		t.Error("refresh token accepted as session token")
	}
	if res := svc.VerifyRefresh(access); res.Valid {
		t.Error("session token accepted as refresh token")
	}

	res := svc.VerifyRefresh(refresh)
	if !res.Valid || res.Claims.ID != "user-1" {
		t.Fatalf("VerifyRefresh() = %+v, want valid for user-1", res)
	}
	if res.Claims.RegisteredClaims.ID == "" {
		t.Error("refresh token has no jti")
	}

	now = issuedAt.Add(29 * 24 * time.Hour)
	if res := svc.VerifyRefresh(refresh); !res.Valid {
		t.Error("refresh token expired before 30 days")
	}

	now = issuedAt.Add(31 * 24 * time.Hour)
	if res := svc.VerifyRefresh(refresh); !res.Expired {
		t.Error("refresh token did not expire after 30 days")
	}
}

func TestTokenService_IssueRequiresSubject(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, &now)

	if _, err := svc.Issue(""); err == nil {
		t.Error("Issue(\"\") expected error")
	}
}
