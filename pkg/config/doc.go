// Package config loads service configuration from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	TURNSTILE_HOST="0.0.0.0"
//	TURNSTILE_PORT="3000"
//	TURNSTILE_METRICS_PORT="9100"
//	TURNSTILE_CORS_ORIGINS="http://localhost:5173"
//
// Storage settings:
//
//	TURNSTILE_DB_DRIVER="sqlite3"  # sqlite3, postgres
//	TURNSTILE_DATABASE_URL="file:turnstile.db?_foreign_keys=on"
//
// Cache settings:
//
//	TURNSTILE_CACHE_PROVIDER="memory"  # memory, redis
//	TURNSTILE_REDIS_URL="redis://localhost:6379/0"
//	TURNSTILE_CACHE_TTL="5m"
//
// Token settings:
//
//	TURNSTILE_JWT_SECRET="..."            # required
//	TURNSTILE_REFRESH_TOKEN_SECRET="..."  # required, distinct
//	TURNSTILE_JWT_EXPIRY="30m"
//	TURNSTILE_REFRESH_TOKEN_EXPIRY="720h"
//
// Relying party settings are read by passkey.LoadConfigFromEnv
// (TURNSTILE_WEBAUTHN_*).
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatalf("Failed to load configuration: %v", err)
//	}
package config
