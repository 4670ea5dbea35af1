package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	// Dataset database (scraped stats tables)
	DatasetDriver   string
	DatasetURL      string
	HistoricalTable string
	CurrentTable    string

	// Database URLs
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Pipeline worker
	PipelineQueueSize int

	// Schedules (cron with seconds)
	TrainSchedule   string
	PromoteSchedule string

	// Auth
	JWTSecret      string
	AccessTokenTTL time.Duration

	// Serving
	PredictionCacheTTL time.Duration
	PromotionLockTTL   time.Duration

	// Pipeline file
	PipelineConfigPath string
	Pipeline           *Pipeline
}

// Load loads configuration from environment variables and the pipeline file.
// It returns an error if critical configuration is missing.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		DatasetDriver:   getEnv("DATASET_DRIVER", "mysql"),
		HistoricalTable: getEnv("HISTORICAL_TABLE", "historical_data_table"),
		CurrentTable:    getEnv("CURRENT_TABLE", "current_data_table"),

		ClickHouseURL: getEnv("CLICKHOUSE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),

		PipelineQueueSize: getEnvInt("PIPELINE_QUEUE_SIZE", 16),

		TrainSchedule:   getEnv("TRAIN_SCHEDULE", "0 0 6 * * *"),
		PromoteSchedule: getEnv("PROMOTE_SCHEDULE", ""),

		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),

		PredictionCacheTTL: getEnvDuration("PREDICTION_CACHE_TTL", 10*time.Minute),
		PromotionLockTTL:   getEnvDuration("PROMOTION_LOCK_TTL", 10*time.Minute),

		PipelineConfigPath: getEnv("PIPELINE_CONFIG", "config.yaml"),
	}

	// CORS
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	rawOrigins := strings.Split(origins, ",")
	for _, o := range rawOrigins {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	switch cfg.DatasetDriver {
	case "mysql", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DATASET_DRIVER %q (want mysql or postgres)", cfg.DatasetDriver)
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.DatasetURL, err = getEnvRequired("DATASET_URL"); err != nil {
		return nil, err
	}

	cfg.Pipeline, err = LoadPipeline(cfg.PipelineConfigPath)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireServer checks the settings only the API server needs
func (c *Config) RequireServer() error {
	var err error
	if c.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
		return err
	}
	if c.JWTSecret, err = getEnvRequired("JWT_SECRET"); err != nil {
		return err
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
