package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/barber-booking/cmd/mainconfig"
	"github.com/wolfman30/barber-booking/internal/api/router"
	"github.com/wolfman30/barber-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/barber-booking/internal/config"
	"github.com/wolfman30/barber-booking/internal/http/handlers"
	"github.com/wolfman30/barber-booking/internal/notify"
	"github.com/wolfman30/barber-booking/internal/observability/metrics"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

const devOpeningPoints = 100

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting barber-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_store", cfg.UseMemoryStore,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	metricsHandler, bookingMetrics := setupMetrics()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	sqsClient, sesClient, err := setupAWSClients(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	notifications, err := bootstrap.BuildNotifier(cfg, bootstrap.NotifierDeps{
		SQS:       sqsClient,
		SES:       sesClient,
		Directory: contactDirectory(cfg, pool),
		Metrics:   bookingMetrics,
	}, logger)
	if err != nil {
		logger.Error("failed to build notifier", "error", err)
		os.Exit(1)
	}

	rt, err := bootstrap.BuildEngine(cfg, bootstrap.EngineDeps{
		Pool:     pool,
		Redis:    redisClient,
		Notifier: notifications.Dispatcher,
		Metrics:  bookingMetrics,
	}, logger)
	if err != nil {
		logger.Error("failed to build booking engine", "error", err)
		os.Exit(1)
	}
	if cfg.UseMemoryStore && cfg.Env == "development" {
		if err := bootstrap.SeedDevelopment(rt, devOpeningPoints); err != nil {
			logger.Error("failed to seed development data", "error", err)
			os.Exit(1)
		}
		logger.Info("development data seeded", "provider_id", bootstrap.DevProviderID)
	}

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Booking:            handlers.NewBookingHandler(rt.Engine, logger),
		Health:             handlers.NewHealthHandler(healthChecks(pool, redisClient)),
		Resolver:           rt.Resolver,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BookRateLimit:      cfg.BookRateLimit,
		BookRateBurst:      cfg.BookRateBurst,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := notifications.Close(shutdownCtx); err != nil {
		logger.Warn("notifications not fully drained", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the booking metrics on a private registry.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// setupAWSClients returns nil clients when no channel needs AWS.
func setupAWSClients(ctx context.Context, cfg *appconfig.Config) (*sqs.Client, *sesv2.Client, error) {
	if !mainconfig.NeedsAWS(cfg) {
		return nil, nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	clients := mainconfig.NewClients(awsCfg, cfg.AWSEndpointOverride)
	return clients.SQS, clients.SES, nil
}

func contactDirectory(cfg *appconfig.Config, pool *pgxpool.Pool) notify.Directory {
	if pool != nil {
		return notify.NewPostgresDirectory(pool)
	}
	dir := notify.NewMemoryDirectory()
	if cfg.Env == "development" {
		dir.Put("dev-client", notify.Contact{Email: "dev-client@barber.local", Name: "Dev Client"})
	}
	return dir
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]handlers.Pinger {
	checks := make(map[string]handlers.Pinger)
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
