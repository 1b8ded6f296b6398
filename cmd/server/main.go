package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/aascan/client"
	"github.com/brojonat/aascan/service/cache"
	"github.com/brojonat/aascan/service/config"
	"github.com/brojonat/aascan/service/db"
	"github.com/brojonat/aascan/service/metrics"
	natspkg "github.com/brojonat/aascan/service/nats"
	"github.com/brojonat/aascan/service/networks"
	"github.com/brojonat/aascan/service/server"
	"github.com/brojonat/aascan/service/session"
	"github.com/brojonat/aascan/service/telemetry"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"query_api_url", cfg.QueryAPIURL,
		"default_network", cfg.DefaultNetwork,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, "aascan-server", cfg.OTELEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer shutdownTracer(context.Background())

	reg, err := networks.BuiltinRegistry().WithDefault(cfg.DefaultNetwork)
	if err != nil {
		logger.Error("invalid default network", "error", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	queryClient := client.NewClient(cfg.QueryAPIURL, &http.Client{Timeout: cfg.QueryTimeout}, logger, client.WithMetrics(metricsCollector))
	querier, err := cache.New(queryClient, cache.Config{Addr: cfg.RedisAddr, TTL: cfg.CacheTTL}, logger, metricsCollector)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer querier.Close()

	healthChecks := map[string]server.HealthCheck{}

	// Preferences survive restarts only with a database
	var prefs session.PreferenceStore = db.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		store, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		prefs = store
		healthChecks["database"] = store.Ping
		logger.Info("connected to database")
	} else {
		logger.Warn("DATABASE_URL not set, selected networks are kept in memory")
	}

	var publisher natspkg.Publisher
	var subscriber server.NotificationSubscriber
	if cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, logger, metricsCollector)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		publisher = pub

		sub, err := natspkg.NewSubscriber(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS subscriber", "error", err)
			os.Exit(1)
		}
		defer sub.Close()
		subscriber = sub
	} else {
		logger.Warn("NATS_URL not set, notifications are only available by polling")
	}

	sessions := session.NewStore(session.Config{
		Registry:       reg,
		Querier:        querier,
		Preferences:    prefs,
		Publisher:      publisher,
		Logger:         logger,
		Metrics:        metricsCollector,
		TTL:            cfg.SessionTTL,
		ResolveTimeout: cfg.ResolveTimeout,
	})
	go sessions.Run(ctx)

	httpServer := server.New(cfg.ServerAddr, reg, sessions, subscriber, metricsCollector, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}
	for name, check := range healthChecks {
		httpServer.WithHealthCheck(name, check)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
