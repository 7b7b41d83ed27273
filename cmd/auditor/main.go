package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tokenforge/presale-engine/internal/adapter"
	"github.com/tokenforge/presale-engine/internal/auditor"
	"github.com/tokenforge/presale-engine/internal/config"
	"github.com/tokenforge/presale-engine/internal/logger"
	"github.com/tokenforge/presale-engine/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

// main runs a single audit pass over the presale ledger. It exits non-zero
// when any invariant is violated, which makes it usable from cron and CI.
func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAuditorConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx := context.Background()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "presale-auditor",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting presale ledger audit")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.Fatal("Failed to configure connection pool", zap.Error(err))
	}

	ledgerAuditor := auditor.NewAuditor(store.NewPGStore(db), adapter.NewClock(), auditor.Config{
		WorkerPoolSize: cfg.Worker.WorkerPoolSize,
		QueueSize:      cfg.Worker.WorkerQueueSize,
	})

	started := time.Now()
	violations, err := ledgerAuditor.Run(ctx)
	if err != nil {
		logger.Fatal("Audit run failed", zap.Error(err))
	}

	for _, v := range violations {
		logger.ErrorCtx(ctx, fmt.Errorf("invariant violated: %s", v.Rule),
			zap.Int64("tier_id", v.TierID),
			zap.String("buyer", v.Buyer),
			zap.String("detail", v.Detail),
		)
	}

	logger.InfoCtx(ctx, "Audit run completed",
		zap.Duration("duration", time.Since(started)),
		zap.Int("violations", len(violations)),
	)

	if len(violations) > 0 {
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}
}
