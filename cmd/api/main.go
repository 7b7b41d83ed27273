package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tokenforge/presale-engine/internal/adapter"
	"github.com/tokenforge/presale-engine/internal/api/middleware"
	"github.com/tokenforge/presale-engine/internal/api/server"
	"github.com/tokenforge/presale-engine/internal/config"
	"github.com/tokenforge/presale-engine/internal/engine"
	"github.com/tokenforge/presale-engine/internal/logger"
	"github.com/tokenforge/presale-engine/internal/messaging"
	"github.com/tokenforge/presale-engine/internal/providers/jetstream"
	"github.com/tokenforge/presale-engine/internal/registry"
	"github.com/tokenforge/presale-engine/internal/store"
	"github.com/tokenforge/presale-engine/internal/webhook"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "presale-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting presale API")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.Fatal("Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	fs := adapter.NewFileSystem()
	jsonAdapter := adapter.NewJSON()
	clock := adapter.NewClock()

	// Load and seed the tier table. Seeding is idempotent: tiers that already
	// exist keep their sold counters untouched.
	tiers, err := registry.LoadTiers(fs, jsonAdapter, cfg.TiersPath)
	if err != nil {
		logger.Fatal("Failed to load tier configuration",
			zap.Error(err),
			zap.String("path", cfg.TiersPath))
	}
	if err := dataStore.SeedTiers(ctx, tiers); err != nil {
		logger.Fatal("Failed to seed tiers", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Tier table ready",
		zap.Int("tiers", len(tiers)),
		zap.String("path", cfg.TiersPath))

	// Settlement events fan out to every configured sink. Both sinks are
	// optional: with neither configured the engine runs without emitting
	// events.
	var publishers []messaging.Publisher

	// Connect to NATS JetStream for settlement events
	if cfg.NATS.URL != "" {
		natsPublisher, err := jetstream.NewPublisher(jetstream.Config{
			URL:            cfg.NATS.URL,
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream(), jsonAdapter)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		publishers = append(publishers, natsPublisher)
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))
	}

	// Deliver HMAC-signed settlement webhooks
	if cfg.Webhook.URL != "" {
		publishers = append(publishers, webhook.NewNotifier(webhook.Config{
			URL:    cfg.Webhook.URL,
			Secret: cfg.Webhook.Secret,
		}, adapter.NewHTTPClient(cfg.Webhook.Timeout)))
		logger.InfoCtx(ctx, "Webhook delivery enabled", zap.String("url", cfg.Webhook.URL))
	}

	var publisher messaging.Publisher
	switch len(publishers) {
	case 0:
		logger.WarnCtx(ctx, "No event sink configured, settlement events will not be emitted")
	case 1:
		publisher = publishers[0]
	default:
		publisher = messaging.NewFanout(publishers...)
	}
	if publisher != nil {
		defer publisher.Close()
	}

	// Create the presale engine
	presaleEngine := engine.NewEngine(dataStore, clock, publisher)

	// Create server config
	serverConfig := server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}

	// Create and start server
	srv := server.New(serverConfig, presaleEngine)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
