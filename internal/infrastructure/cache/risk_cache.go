package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/claimsight/risk-engine/internal/domain/claim"
	"github.com/claimsight/risk-engine/internal/infrastructure/config"
)

// RiskCache caches computed risk scores per claim in Redis
type RiskCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

type riskEntry struct {
	Score     float64 `json:"score"`
	RiskLevel string  `json:"risk_level"`
}

// NewRiskCache creates a Redis-backed risk score cache with the given
// configuration
func NewRiskCache(cfg *config.RedisConfig, logger *zap.Logger) (*RiskCache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("risk score cache initialized",
		zap.String("addr", cfg.URL),
		zap.Int("db", cfg.DB),
		zap.Duration("ttl", cfg.ScoreTTL))

	return &RiskCache{
		client: client,
		logger: logger,
		ttl:    cfg.ScoreTTL,
	}, nil
}

// NewRiskCacheWithClient wraps an existing client. Used in tests.
func NewRiskCacheWithClient(client *redis.Client, logger *zap.Logger, ttl time.Duration) *RiskCache {
	return &RiskCache{client: client, logger: logger, ttl: ttl}
}

// Get returns the cached score and level for a claim, found=false on miss
func (c *RiskCache) Get(ctx context.Context, claimID uuid.UUID) (float64, claim.RiskLevel, bool, error) {
	raw, err := c.client.Get(ctx, riskKey(claimID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, "", false, nil
		}
		c.logger.Error("risk cache get failed",
			zap.String("claim_id", claimID.String()),
			zap.Error(err))
		return 0, "", false, fmt.Errorf("risk cache get failed: %w", err)
	}

	var entry riskEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return 0, "", false, fmt.Errorf("risk cache entry corrupt: %w", err)
	}

	level, err := claim.ParseRiskLevel(entry.RiskLevel)
	if err != nil {
		return 0, "", false, fmt.Errorf("risk cache entry corrupt: %w", err)
	}

	return entry.Score, level, true, nil
}

// Set stores the score and level for a claim with the configured TTL
func (c *RiskCache) Set(ctx context.Context, claimID uuid.UUID, score float64, level claim.RiskLevel) error {
	payload, err := json.Marshal(riskEntry{Score: score, RiskLevel: level.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal risk cache entry: %w", err)
	}

	if err := c.client.Set(ctx, riskKey(claimID), payload, c.ttl).Err(); err != nil {
		c.logger.Error("risk cache set failed",
			zap.String("claim_id", claimID.String()),
			zap.Error(err))
		return fmt.Errorf("risk cache set failed: %w", err)
	}

	return nil
}

// Close releases the underlying client
func (c *RiskCache) Close() error {
	return c.client.Close()
}

func riskKey(claimID uuid.UUID) string {
	return "risk:score:" + claimID.String()
}
