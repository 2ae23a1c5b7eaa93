package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/claimsight/risk-engine/internal/infrastructure/cache"
	"github.com/claimsight/risk-engine/internal/infrastructure/config"
	"github.com/claimsight/risk-engine/internal/infrastructure/database"
	"github.com/claimsight/risk-engine/internal/infrastructure/notify"
	"github.com/claimsight/risk-engine/internal/infrastructure/repository"
	"github.com/claimsight/risk-engine/internal/infrastructure/telemetry"
	"github.com/claimsight/risk-engine/internal/service/anomaly"
	"github.com/claimsight/risk-engine/internal/service/insight"
	"github.com/claimsight/risk-engine/internal/service/scoring"
)

func main() {
	var configPath = flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	slog.SetDefault(logger)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to set up infrastructure logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewConnectionPool(&cfg.Database, zapLogger)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	riskCache, err := cache.NewRiskCache(&cfg.Redis, zapLogger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer riskCache.Close()

	publisher, err := notify.New(cfg.Notify)
	if err != nil {
		logger.Error("failed to create notification publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer publisher.Close()

	claims := repository.NewClaimRepository(pool.Pool())
	events := repository.NewFraudEventRepository(pool.Pool())
	vendors := repository.NewVendorRepository(pool.Pool())

	insights := insight.NewGenerator(&cfg.Insight, logger)

	scorer := scoring.NewService(claims, events, insights, riskCache, nil, logger,
		scoring.WithRunTimeout(cfg.Scoring.RunTimeout),
		scoring.WithInsightTimeout(cfg.Scoring.InsightTimeout),
	)

	scanner := anomaly.NewScanner(vendors, vendors, publisher, logger, cfg.Scanner.Concurrency)

	go runScanLoop(ctx, scanner, cfg.Scanner, logger)

	srv := newServer(cfg, scorer, pool)
	go func() {
		logger.Info("risk engine listening",
			slog.Int("port", cfg.Server.Port),
			slog.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}

// runScanLoop triggers a vendor anomaly scan immediately and then on every
// tick until shutdown.
func runScanLoop(ctx context.Context, scanner *anomaly.Scanner, cfg config.ScannerConfig, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	scan := func() {
		report, err := scanner.ScanVendorAnomalies(ctx, cfg.WindowMonths)
		if err != nil {
			logger.ErrorContext(ctx, "vendor anomaly scan failed",
				slog.String("error", err.Error()))
			return
		}
		for name, reason := range report.Skipped {
			if reason == anomaly.SkipFailed {
				logger.WarnContext(ctx, "vendor skipped during scan",
					slog.String("vendor", name),
					slog.String("reason", string(reason)))
			}
		}
	}

	scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scan()
		}
	}
}
