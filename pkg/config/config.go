package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/cache"
	"github.com/platinummonkey/turnstile/pkg/objectstore"
	"github.com/platinummonkey/turnstile/pkg/observability"
	"github.com/platinummonkey/turnstile/pkg/passkey"
	"github.com/platinummonkey/turnstile/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Cache         cache.Config
	Auth          AuthConfig
	Passkey       passkey.Config
	RateLimit     RateLimitConfig
	ObjectStore   objectstore.Config
	Maintenance   MaintenanceConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// TrustedProxies may set X-Forwarded-For; empty means none
	TrustedProxies []string

	// Metrics are served on their own port
	MetricsPort string
}

// AuthConfig holds token and cookie settings
type AuthConfig struct {
	JWTSecret          string
	RefreshTokenSecret string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	CookieSecure       bool
}

// RateLimitConfig holds the per-client limit applied to auth endpoints
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// MaintenanceConfig holds the housekeeping schedule
type MaintenanceConfig struct {
	// Schedule is a cron expression for the session pruning job
	Schedule string
	// SessionRetention is how long audit sessions are kept. Zero keeps them forever.
	SessionRetention time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled  bool
	MetricsUsername string
	MetricsPassword string

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	passkeyCfg, err := passkey.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load passkey config: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Cache:         loadCacheConfig(),
		Auth:          loadAuthConfig(),
		Passkey:       passkeyCfg,
		RateLimit:     loadRateLimitConfig(),
		ObjectStore:   loadObjectStoreConfig(),
		Maintenance:   loadMaintenanceConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TURNSTILE_HOST", "0.0.0.0"),
		Port:            getEnv("TURNSTILE_PORT", "3000"),
		ReadTimeout:     getEnvDuration("TURNSTILE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TURNSTILE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TURNSTILE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TURNSTILE_SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSOrigins:     getEnvList("TURNSTILE_CORS_ORIGINS", []string{"http://localhost:5173"}),
		TrustedProxies:  getEnvList("TURNSTILE_TRUSTED_PROXIES", nil),
		MetricsPort:     getEnv("TURNSTILE_METRICS_PORT", "9100"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if driver := getEnv("TURNSTILE_DB_DRIVER", ""); driver != "" {
		cfg.Driver = driver
	}
	if url := getEnv("TURNSTILE_DATABASE_URL", ""); url != "" {
		cfg.URL = url
	}
	if maxOpen := getEnvInt("TURNSTILE_DB_MAX_OPEN_CONNS", 0); maxOpen > 0 {
		cfg.MaxOpenConns = maxOpen
	}
	if maxIdle := getEnvInt("TURNSTILE_DB_MAX_IDLE_CONNS", 0); maxIdle > 0 {
		cfg.MaxIdleConns = maxIdle
	}
	if lifetime := getEnvDuration("TURNSTILE_DB_CONN_MAX_LIFETIME", 0); lifetime > 0 {
		cfg.ConnMaxLifetime = lifetime
	}

	return cfg
}

func loadCacheConfig() cache.Config {
	cfg := cache.DefaultConfig()

	if provider := getEnv("TURNSTILE_CACHE_PROVIDER", ""); provider != "" {
		cfg.Provider = strings.ToLower(provider)
	}
	if redisURL := getEnv("TURNSTILE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if prefix := getEnv("TURNSTILE_REDIS_KEY_PREFIX", ""); prefix != "" {
		cfg.KeyPrefix = prefix
	}
	if maxEntries := getEnvInt("TURNSTILE_CACHE_MAX_ENTRIES", 0); maxEntries > 0 {
		cfg.MaxEntries = maxEntries
	}
	if ttl := getEnvDuration("TURNSTILE_CACHE_TTL", 0); ttl > 0 {
		cfg.SessionTTL = ttl
	}
	if maxEntries := getEnvInt("TURNSTILE_CHALLENGE_MAX_ENTRIES", 0); maxEntries > 0 {
		cfg.ChallengeMaxEntries = maxEntries
	}

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:          getEnv("TURNSTILE_JWT_SECRET", ""),
		RefreshTokenSecret: getEnv("TURNSTILE_REFRESH_TOKEN_SECRET", ""),
		AccessTTL:          getEnvDuration("TURNSTILE_JWT_EXPIRY", auth.DefaultAccessTTL),
		RefreshTTL:         getEnvDuration("TURNSTILE_REFRESH_TOKEN_EXPIRY", auth.DefaultRefreshTTL),
		CookieSecure:       getEnvBool("TURNSTILE_COOKIE_SECURE", false),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:  getEnvBool("TURNSTILE_RATE_LIMIT_ENABLED", true),
		Requests: getEnvInt("TURNSTILE_RATE_LIMIT_REQUESTS", 300),
		Window:   getEnvDuration("TURNSTILE_RATE_LIMIT_WINDOW", time.Minute),
	}
}

func loadObjectStoreConfig() objectstore.Config {
	return objectstore.Config{
		Bucket:        getEnv("TURNSTILE_S3_BUCKET", ""),
		Region:        getEnv("TURNSTILE_S3_REGION", "us-east-1"),
		Endpoint:      getEnv("TURNSTILE_S3_ENDPOINT", ""),
		AccessKey:     getEnv("TURNSTILE_S3_ACCESS_KEY", ""),
		SecretKey:     getEnv("TURNSTILE_S3_SECRET_KEY", ""),
		UsePathStyle:  getEnvBool("TURNSTILE_S3_USE_PATH_STYLE", false),
		PublicBaseURL: getEnv("TURNSTILE_S3_PUBLIC_BASE_URL", ""),
		KeyPrefix:     getEnv("TURNSTILE_S3_KEY_PREFIX", "avatars/"),
	}
}

func loadMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Schedule:         getEnv("TURNSTILE_MAINTENANCE_SCHEDULE", "@daily"),
		SessionRetention: getEnvDuration("TURNSTILE_SESSION_RETENTION", 90*24*time.Hour),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("TURNSTILE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TURNSTILE_METRICS_ENABLED", true),
		MetricsUsername:    getEnv("TURNSTILE_METRICS_USERNAME", ""),
		MetricsPassword:    getEnv("TURNSTILE_METRICS_PASSWORD", ""),
		OTelEnabled:        getEnvBool("TURNSTILE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TURNSTILE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TURNSTILE_OTEL_SERVICE_NAME", "turnstile"),
		OTelServiceVersion: getEnv("TURNSTILE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TURNSTILE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("TURNSTILE_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Observability.MetricsEnabled && c.Server.Port == c.Server.MetricsPort {
		return fmt.Errorf("server port and metrics port must be different")
	}
	if _, err := auth.NewClientIPResolver(c.Server.TrustedProxies); err != nil {
		return err
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("TURNSTILE_JWT_SECRET is required")
	}
	if c.Auth.RefreshTokenSecret == "" {
		return fmt.Errorf("TURNSTILE_REFRESH_TOKEN_SECRET is required")
	}
	if c.Auth.JWTSecret == c.Auth.RefreshTokenSecret {
		return fmt.Errorf("access and refresh token secrets must be different")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("token expiry must be positive")
	}

	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverPostgres:
	default:
		return fmt.Errorf("invalid database driver: %s (must be %s or %s)", c.Storage.Driver, storage.DriverSQLite, storage.DriverPostgres)
	}
	if c.Storage.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Cache.Provider {
	case cache.ProviderMemory:
	case cache.ProviderRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache provider")
		}
	default:
		return fmt.Errorf("invalid cache provider: %s (must be %s or %s)", c.Cache.Provider, cache.ProviderMemory, cache.ProviderRedis)
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
		return fmt.Errorf("otel sample ratio must be between 0 and 1")
	}

	if err := c.ObjectStore.Validate(); err != nil {
		return err
	}

	if c.Maintenance.SessionRetention < 0 {
		return fmt.Errorf("session retention must not be negative")
	}
	if c.Maintenance.SessionRetention > 0 && c.Maintenance.Schedule == "" {
		return fmt.Errorf("maintenance schedule is required when session retention is set")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
