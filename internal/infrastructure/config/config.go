package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Insight  InsightConfig  `koanf:"insight"`
	Notify   NotifyConfig   `koanf:"notify"`
	Scoring  ScoringConfig  `koanf:"scoring"`
	Scanner  ScannerConfig  `koanf:"scanner"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	ScoreTTL     time.Duration `koanf:"score_ttl"`
}

// InsightConfig drives the natural-language explanation layer. The engine
// works without it; scoring falls back to the deterministic payload.
type InsightConfig struct {
	APIKey            string        `koanf:"api_key"`
	Model             string        `koanf:"model"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerMinute int           `koanf:"requests_per_minute"`
}

type NotifyConfig struct {
	// Type selects the publisher backend: "channel" or "nats"
	Type              string `koanf:"type"`
	ChannelBufferSize int    `koanf:"channel_buffer_size"`
	NATSUrl           string `koanf:"nats_url"`
	NATSToken         string `koanf:"nats_token"`
	Subject           string `koanf:"subject"`
}

type ScoringConfig struct {
	RunTimeout     time.Duration `koanf:"run_timeout"`
	InsightTimeout time.Duration `koanf:"insight_timeout"`
}

type ScannerConfig struct {
	Interval     time.Duration `koanf:"interval"`
	WindowMonths int           `koanf:"window_months"`
	Concurrency  int           `koanf:"concurrency"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults
	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:           0,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			ScoreTTL:     5 * time.Minute,
		},
		Insight: InsightConfig{
			Model:             "gpt-4",
			Timeout:           8 * time.Second,
			RequestsPerMinute: 30,
		},
		Notify: NotifyConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
			Subject:           "risk.anomaly",
		},
		Scoring: ScoringConfig{
			RunTimeout:     30 * time.Second,
			InsightTimeout: 8 * time.Second,
		},
		Scanner: ScannerConfig{
			Interval:     time.Hour,
			WindowMonths: 3,
			Concurrency:  4,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Load from config file if present
	if path == "" {
		path = "configs/config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Override with environment variables
	if err := k.Load(env.Provider("RISK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "RISK_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
