package config

import (
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/turnstile/pkg/cache"
	"github.com/platinummonkey/turnstile/pkg/observability"
	"github.com/platinummonkey/turnstile/pkg/storage"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TURNSTILE_JWT_SECRET", "access-secret")
	t.Setenv("TURNSTILE_REFRESH_TOKEN_SECRET", "refresh-secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "3000" {
		t.Errorf("Server.Port = %s, want 3000", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != "9100" {
		t.Errorf("Server.MetricsPort = %s, want 9100", cfg.Server.MetricsPort)
	}
	if cfg.Auth.AccessTTL != 30*time.Minute {
		t.Errorf("Auth.AccessTTL = %v, want 30m", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.RefreshTTL != 720*time.Hour {
		t.Errorf("Auth.RefreshTTL = %v, want 720h", cfg.Auth.RefreshTTL)
	}
	if cfg.Cache.Provider != cache.ProviderMemory {
		t.Errorf("Cache.Provider = %s, want memory", cfg.Cache.Provider)
	}
	if cfg.Cache.SessionTTL != 5*time.Minute {
		t.Errorf("Cache.SessionTTL = %v, want 5m", cfg.Cache.SessionTTL)
	}
	if cfg.Storage.Driver != storage.DriverSQLite {
		t.Errorf("Storage.Driver = %s, want sqlite3", cfg.Storage.Driver)
	}
	if cfg.RateLimit.Requests != 300 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit = %+v, want 300/1m", cfg.RateLimit)
	}
	if cfg.Passkey.RPID != "localhost" {
		t.Errorf("Passkey.RPID = %s, want localhost", cfg.Passkey.RPID)
	}
	if cfg.ObjectStore.Enabled() {
		t.Error("ObjectStore should be disabled without a bucket")
	}
	if cfg.Maintenance.Schedule != "@daily" || cfg.Maintenance.SessionRetention != 90*24*time.Hour {
		t.Errorf("Maintenance = %+v, want @daily/90d", cfg.Maintenance)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TURNSTILE_PORT", "8080")
	t.Setenv("TURNSTILE_CACHE_PROVIDER", "REDIS")
	t.Setenv("TURNSTILE_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("TURNSTILE_CACHE_TTL", "90s")
	t.Setenv("TURNSTILE_DB_DRIVER", "postgres")
	t.Setenv("TURNSTILE_DATABASE_URL", "postgres://localhost/turnstile")
	t.Setenv("TURNSTILE_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TURNSTILE_COOKIE_SECURE", "true")
	t.Setenv("TURNSTILE_LOG_LEVEL", "debug")
	t.Setenv("TURNSTILE_TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %s", cfg.Server.Port)
	}
	if cfg.Cache.Provider != cache.ProviderRedis || cfg.Cache.SessionTTL != 90*time.Second {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Storage.Driver != storage.DriverPostgres {
		t.Errorf("Storage.Driver = %s", cfg.Storage.Driver)
	}
	if strings.Join(cfg.Server.CORSOrigins, "|") != "https://a.example|https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if strings.Join(cfg.Server.TrustedProxies, "|") != "10.0.0.0/8|172.16.0.1" {
		t.Errorf("TrustedProxies = %v", cfg.Server.TrustedProxies)
	}
	if !cfg.Auth.CookieSecure {
		t.Error("CookieSecure should be true")
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: "3000", MetricsPort: "9100"},
			Storage: storage.DefaultConfig(),
			Cache:   cache.DefaultConfig(),
			Auth: AuthConfig{
				JWTSecret:          "a",
				RefreshTokenSecret: "b",
				AccessTTL:          time.Minute,
				RefreshTTL:         time.Hour,
			},
			RateLimit:     RateLimitConfig{Enabled: true, Requests: 300, Window: time.Minute},
			Observability: ObservabilityConfig{MetricsEnabled: true},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing access secret", func(c *Config) { c.Auth.JWTSecret = "" }, "TURNSTILE_JWT_SECRET"},
		{"missing refresh secret", func(c *Config) { c.Auth.RefreshTokenSecret = "" }, "TURNSTILE_REFRESH_TOKEN_SECRET"},
		{"same secrets", func(c *Config) { c.Auth.RefreshTokenSecret = "a" }, "must be different"},
		{"same ports", func(c *Config) { c.Server.MetricsPort = "3000" }, "metrics port"},
		{"same ports without metrics", func(c *Config) {
			c.Server.MetricsPort = "3000"
			c.Observability.MetricsEnabled = false
		}, ""},
		{"bad trusted proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/40"} }, "invalid trusted proxy"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mysql" }, "invalid database driver"},
		{"bad provider", func(c *Config) { c.Cache.Provider = "memcached" }, "invalid cache provider"},
		{"redis without url", func(c *Config) { c.Cache.Provider = cache.ProviderRedis }, "redis URL"},
		{"zero rate limit", func(c *Config) { c.RateLimit.Requests = 0 }, "rate limit"},
		{"negative retention", func(c *Config) { c.Maintenance.SessionRetention = -time.Hour }, "session retention"},
		{"retention without schedule", func(c *Config) { c.Maintenance.SessionRetention = time.Hour }, "maintenance schedule"},
		{"s3 without region", func(c *Config) { c.ObjectStore.Bucket = "avatars" }, "region"},
		{"sample ratio above one", func(c *Config) { c.Observability.OTelSampleRatio = 1.5 }, "sample ratio"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "x"
		}, "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "x")
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_DURATION", "2m")
	t.Setenv("TEST_FLOAT", "0.25")

	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() with bad value = %d", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat() = %v", got)
	}
	if !getEnvBool("TEST_BOOL", false) {
		t.Error("getEnvBool() = false")
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 2*time.Minute {
		t.Errorf("getEnvDuration() = %v", got)
	}
	if got := getEnv("TEST_UNSET_VAR", "default"); got != "default" {
		t.Errorf("getEnv() = %s", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]observability.LogLevel{
		"debug":   observability.DebugLevel,
		"INFO":    observability.InfoLevel,
		"warning": observability.WarnLevel,
		"error":   observability.ErrorLevel,
		"bogus":   observability.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
