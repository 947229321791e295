package auth

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUser_NeverSerializesPasswordHash(t *testing.T) {
	user := &User{
		ID:           "u1",
		Email:        "a@x.com",
		FirstName:    "A",
		LastName:     "B",
		PasswordHash: "$argon2id$secret",
		CreatedAt:    time.Now(),
	}

	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	body := string(data)
	if strings.Contains(strings.ToLower(body), "password") || strings.Contains(body, "argon2id") {
		t.Errorf("serialized user leaks password: %s", body)
	}
}

func TestUser_SanitizedAndPublic(t *testing.T) {
	user := &User{ID: "u1", Email: "a@x.com", PasswordHash: "hash"}

	clean := user.Sanitized()
	if clean.PasswordHash != "" {
		t.Error("Sanitized() kept password hash")
	}
	if user.PasswordHash != "hash" {
		t.Error("Sanitized() mutated the original")
	}
	if !user.HasPassword() || clean.HasPassword() {
		t.Error("HasPassword() mismatch")
	}

	pub := user.Public()
	if pub.ID != "u1" || pub.Email != "a@x.com" {
		t.Errorf("Public() = %+v", pub)
	}
}

func TestDeviceTypeFor(t *testing.T) {
	if DeviceTypeFor(true) != DeviceTypeMulti {
		t.Error("backup eligible credential should be multiDevice")
	}
	if DeviceTypeFor(false) != DeviceTypeSingle {
		t.Error("non backup eligible credential should be singleDevice")
	}
}

func TestClientIPResolver(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"10.0.0.0/8", "192.0.2.10"})
	if err != nil {
		t.Fatalf("NewClientIPResolver() error = %v", err)
	}

	tests := []struct {
		name       string
		resolver   *ClientIPResolver
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"untrusted peer ignores forwarded", resolver, "203.0.113.7", "", "198.51.100.1:1234", "198.51.100.1"},
		{"untrusted peer ignores real ip", resolver, "", "203.0.113.7", "198.51.100.1:1234", "198.51.100.1"},
		{"nil resolver trusts nobody", nil, "203.0.113.7", "", "10.0.0.1:1234", "10.0.0.1"},
		{"trusted proxy single hop", resolver, "203.0.113.7", "", "10.0.0.1:1234", "203.0.113.7"},
		{"trusted single address", resolver, "203.0.113.7", "", "192.0.2.10:80", "203.0.113.7"},
		{"spoofed leftmost hop skipped", resolver, "6.6.6.6, 203.0.113.7, 10.0.0.2", "", "10.0.0.1:1234", "203.0.113.7"},
		{"all hops trusted uses leftmost", resolver, "10.0.0.3, 10.0.0.2", "", "10.0.0.1:1234", "10.0.0.3"},
		{"garbage hop", resolver, "203.0.113.7, not-an-ip", "", "10.0.0.1:1234", "10.0.0.1"},
		{"real ip behind proxy", resolver, "", "198.51.100.4", "10.0.0.1:1234", "198.51.100.4"},
		{"remote addr without port", resolver, "", "", "192.0.2.1", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := tt.resolver.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClientIPResolver_Invalid(t *testing.T) {
	for _, raw := range []string{"10.0.0.0/33", "proxy.internal"} {
		if _, err := NewClientIPResolver([]string{raw}); err == nil {
			t.Errorf("NewClientIPResolver(%q) expected error", raw)
		}
	}
}

func TestNewSessionFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.Header.Set("User-Agent", "test-agent")

	s := NewSessionFromRequest(r, "203.0.113.7", "u1", SessionMethodPassword)
	if s.ID == "" {
		t.Error("session has no id")
	}
	if s.UserID != "u1" || s.IP != "203.0.113.7" || s.UserAgent != "test-agent" || s.Method != SessionMethodPassword {
		t.Errorf("NewSessionFromRequest() = %+v", s)
	}
	if s.CreatedAt.IsZero() {
		t.Error("session has no timestamp")
	}
}
