package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vehicle-lookup-api/config"
	"vehicle-lookup-api/internal/access"
	"vehicle-lookup-api/internal/api"
	"vehicle-lookup-api/internal/audit"
	"vehicle-lookup-api/internal/cache"
	"vehicle-lookup-api/internal/database"
	"vehicle-lookup-api/internal/events"
	"vehicle-lookup-api/internal/logging"
	"vehicle-lookup-api/internal/lookup"
	"vehicle-lookup-api/internal/metrics"
	"vehicle-lookup-api/internal/ratelimit"
	"vehicle-lookup-api/internal/registry"
	"vehicle-lookup-api/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(logging.Config{JSONFormat: true})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize structured logging
	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logging.SetDefault(logger)
	log := logging.WithComponent(logger, "main")
	log.Info().Str("version", config.Version).Str("route", cfg.Route).Msg("Structured logging initialized")

	ctx := context.Background()

	// Template secrets: Vault first, environment as fallback
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Vault client")
		}
		vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = vaultClient.ApplyTo(vctx, &cfg.RegistryConfig)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read template secrets from Vault, using environment")
		} else {
			log.Info().Msg("Template secrets loaded from Vault")
		}
	}
	if err := cfg.ValidateSecrets(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize event bus
	eventBus := events.NewEventBus()
	setupEventLogging(eventBus, logger)
	metrics.CountEvents(eventBus)

	// Connect to the store and run migrations
	store, err := database.Open(ctx, cfg.DatabaseConfig.URI, cfg.DatabaseConfig.Database, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Registry client
	templates, err := registry.LoadTemplates(cfg.RegistryConfig.TemplateDir, cfg.RegistryConfig.Secrets)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load query templates")
	}
	registryClient, err := registry.NewClient(cfg.RegistryConfig, templates, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create registry client")
	}

	// Request ceiling: shared Redis counters when enabled, local otherwise
	var limiter interface {
		ratelimit.Limiter
		Cleanup() int
	}
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Redis client")
		}
		limiter = ratelimit.NewRedisLimiter(cacheService, cfg.RateLimitConfig.RequestsPerHour, time.Hour, logger)
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitConfig.RequestsPerHour, time.Hour)
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	go runLimiterCleanup(cleanupCtx, limiter, 10*time.Minute)

	gate := access.NewGate(store, logger)
	lookupService := lookup.NewService(gate, registryClient, eventBus, logger)
	recorder := audit.NewRecorder(store, eventBus, cfg.Route, config.Version, logger)

	deps := api.Deps{
		Lookup:   lookupService,
		Store:    store,
		Recorder: recorder,
		Limiter:  limiter,
		Bus:      eventBus,
		Logger:   logger,
	}
	if cacheService != nil {
		deps.Cache = cacheService
	}
	server := api.NewServer(cfg.ServerConfig, deps)

	// Start web server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start web server")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")
	stopCleanup()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down web server")
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Audit entries still pending at shutdown")
	}
	if cacheService != nil {
		if err := cacheService.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing Redis client")
		}
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error closing database")
	}

	log.Info().Msg("Shutdown complete")
}

// setupEventLogging writes failure events to the log
func setupEventLogging(eventBus *events.EventBus, logger zerolog.Logger) {
	log := logging.WithComponent(logger, "events")

	eventBus.Subscribe(events.EventUpstreamFailed, func(event events.Event) {
		log.Warn().Fields(event.Data).Msg("Registry call failed")
	})
	eventBus.Subscribe(events.EventAuditWriteFailed, func(event events.Event) {
		log.Error().Fields(event.Data).Msg("Audit entry lost")
	})
	eventBus.Subscribe(events.EventError, func(event events.Event) {
		log.Error().Fields(event.Data).Msg("Error event")
	})
	eventBus.Subscribe(events.EventLookupDenied, func(event events.Event) {
		log.Debug().Fields(event.Data).Msg("Lookup denied")
	})
	eventBus.Subscribe(events.EventLookupCompleted, func(event events.Event) {
		log.Debug().Fields(event.Data).Msg("Lookup completed")
	})
}

func runLimiterCleanup(ctx context.Context, limiter interface{ Cleanup() int }, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup()
		}
	}
}
