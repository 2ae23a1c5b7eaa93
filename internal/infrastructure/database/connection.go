package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/claimsight/risk-engine/internal/infrastructure/config"
)

// ConnectionPool wraps a pgx connection pool with lifecycle management
// and sensible runtime defaults for the risk engine workload.
type ConnectionPool struct {
	pool   *pgxpool.Pool
	config *config.DatabaseConfig
	logger *zap.Logger
}

// NewConnectionPool creates a new connection pool against the configured
// primary database and verifies connectivity before returning.
func NewConnectionPool(cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	configurePgxPool(poolConfig, cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection pool initialized",
		zap.Int32("max_connections", poolConfig.MaxConns))

	return &ConnectionPool{
		pool:   pool,
		config: cfg,
		logger: logger,
	}, nil
}

// configurePgxPool applies pool and session configuration
func configurePgxPool(poolConfig *pgxpool.Config, cfg *config.DatabaseConfig, logger *zap.Logger) {
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	} else {
		poolConfig.MaxConns = 25
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	} else {
		poolConfig.MinConns = 5
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}
	poolConfig.MaxConnIdleTime = 10 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second

	poolConfig.ConnConfig.RuntimeParams = map[string]string{
		"application_name":  "risk_engine",
		"timezone":          "UTC",
		"lock_timeout":      "10s",
		"statement_timeout": "30s",
	}

	poolConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		logger.Debug("establishing database connection",
			zap.String("host", cc.Host),
			zap.Uint16("port", cc.Port))
		return nil
	}
}

// Pool returns the underlying pgx pool for repository use
func (p *ConnectionPool) Pool() *pgxpool.Pool {
	return p.pool
}

// Ping verifies the database is reachable
func (p *ConnectionPool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Transaction executes fn inside a transaction, rolling back on error
func (p *ConnectionPool) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Close shuts down the connection pool
func (p *ConnectionPool) Close() {
	p.logger.Info("closing database connection pool")
	p.pool.Close()
}
