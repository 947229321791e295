package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/turnstile/pkg/api"
	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/cache"
	"github.com/platinummonkey/turnstile/pkg/challenge"
	"github.com/platinummonkey/turnstile/pkg/config"
	"github.com/platinummonkey/turnstile/pkg/maintenance"
	"github.com/platinummonkey/turnstile/pkg/middleware"
	"github.com/platinummonkey/turnstile/pkg/objectstore"
	"github.com/platinummonkey/turnstile/pkg/observability"
	"github.com/platinummonkey/turnstile/pkg/passkey"
	"github.com/platinummonkey/turnstile/pkg/presence"
	"github.com/platinummonkey/turnstile/pkg/storage"
	"github.com/platinummonkey/turnstile/pkg/validation"
)

var version = "dev"

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "Apply database migrations and exit")
	flag.Parse()

	if err := run(*migrateOnly); err != nil {
		fmt.Fprintf(os.Stderr, "turnstile: %v\n", err)
		os.Exit(1)
	}
}

func run(migrateOnly bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "turnstile")
	ctx := context.Background()

	otel, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	if migrateOnly {
		logger.Info("Migrations applied")
		return store.Close()
	}

	backend, err := cache.NewBackend(ctx, cfg.Cache)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	logger.WithField("provider", cfg.Cache.Provider).Info("Cache initialized")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	observability.RegisterDBStats(registry, store.DB(), "turnstile")

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  []byte(cfg.Auth.JWTSecret),
		RefreshSecret: []byte(cfg.Auth.RefreshTokenSecret),
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	if err != nil {
		return err
	}

	sessions := cache.NewSessionCache(backend, store, cfg.Cache.SessionTTL, logger, metrics)
	var ledger *challenge.Ledger
	if _, ok := backend.(*cache.MemoryBackend); ok {
		// Challenges get their own LRUs, apart from cached users
		ledger = challenge.NewMemoryLedger(cfg.Cache.ChallengeMaxEntries, cfg.Passkey.ChallengeTTL, logger)
	} else {
		ledger = challenge.NewLedger(backend, cfg.Passkey.ChallengeTTL, logger)
	}
	ceremony, err := passkey.NewCeremony(cfg.Passkey, store, ledger, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize passkeys: %w", err)
	}

	clientIP, err := auth.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	deps := api.Dependencies{
		Store:        store,
		Tokens:       tokens,
		Sessions:     sessions,
		Passkeys:     ceremony,
		Validator:    validation.NewValidator(nil),
		ClientIP:     clientIP,
		Presence:     presence.NewHub(store, sessions, cfg.Server.CORSOrigins, logger, metrics),
		Health:       observability.NewHealthChecker(store.DB(), backend, version),
		Metrics:      metrics,
		Logger:       logger,
		CookieSecure: cfg.Auth.CookieSecure,
		CORSOrigins:  cfg.Server.CORSOrigins,
	}

	if cfg.ObjectStore.Enabled() {
		avatars, err := objectstore.NewAvatarStore(ctx, cfg.ObjectStore, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		deps.Avatars = avatars
	} else {
		logger.Info("Object storage is disabled, avatar uploads will return 404")
	}

	scheduler := maintenance.NewScheduler(logger, 0)
	if cfg.RateLimit.Enabled {
		limitCfg := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			WindowDuration:    cfg.RateLimit.Window,
		}
		// Instances share one window when the cache is redis
		if rb, ok := backend.(*cache.RedisBackend); ok {
			deps.Limiter = middleware.NewDistributedRateLimiter(rb.Client(), limitCfg, "turnstile:ratelimit")
		} else {
			limiter := middleware.NewRateLimiter(limitCfg)
			deps.Limiter = limiter
			if err := scheduler.Add("ratelimit-cleanup", "@every "+cfg.RateLimit.Window.String(), maintenance.CleanupJob(limiter)); err != nil {
				return err
			}
		}
	}
	if cfg.Maintenance.SessionRetention > 0 {
		job := maintenance.PruneSessionsJob(store, cfg.Maintenance.SessionRetention, logger)
		if err := scheduler.Add("prune-sessions", cfg.Maintenance.Schedule, job); err != nil {
			return err
		}
	}
	scheduler.Start()

	server := api.NewServer(deps)
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.AddServer(httpServer)

	if cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", middleware.BasicAuth("metrics",
			cfg.Observability.MetricsUsername, cfg.Observability.MetricsPassword)(observability.MetricsHandler(registry)))
		metricsServer := &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.MetricsPort),
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		shutdown.AddServer(metricsServer)
		go serve(metricsServer, logger.WithField("server", "metrics"))
	}

	shutdown.RegisterShutdownFunc("maintenance", scheduler.Stop)
	shutdown.RegisterShutdownFunc("cache", func(context.Context) error { return backend.Close() })
	shutdown.RegisterShutdownFunc("storage", func(context.Context) error { return store.Close() })
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otel, logger)
	})

	go serve(httpServer, logger.WithField("server", "api"))

	return shutdown.WaitForShutdown(ctx)
}

func serve(srv *http.Server, logger *observability.Logger) {
	logger.Infof("Listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("Server failed")
		os.Exit(1)
	}
}
