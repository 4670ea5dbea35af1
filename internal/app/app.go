// Package app wires the stores, artifact directories and services shared by
// the api, train, promote and scheduler binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/artifacts"
	"github.com/courtvision/nba-analysis/internal/config"
	"github.com/courtvision/nba-analysis/internal/logic"
)

const promotionLockKey = "courtvision:promote:lock"

// App holds the components built from a Config
type App struct {
	Config   *config.Config
	Datasets *logic.DatasetStore
	// Optional backends, nil when not configured
	ClickHouse driver.Conn
	Redis      *redis.Client

	Trainer    *logic.Trainer
	Promoter   *artifacts.Promoter
	Cache      *logic.PredictionCache
	Pipeline   logic.PipelineService
	Models     logic.ModelService
	Prediction logic.PredictionService

	db     *sql.DB
	logger *zap.SugaredLogger
}

// New connects the configured backends and builds the services
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger.Sugar()}
	pipeline := cfg.Pipeline

	db, err := logic.OpenDatasetDB(cfg.DatasetDriver, cfg.DatasetURL)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.Datasets = logic.NewDatasetStore(db, logic.Dialect(cfg.DatasetDriver),
		[]string{cfg.HistoricalTable, cfg.CurrentTable}, logger)

	var history logic.RunHistory
	if cfg.ClickHouseURL != "" {
		opts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse CLICKHOUSE_URL: %w", err)
		}
		conn, err := clickhouse.Open(opts)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		a.ClickHouse = conn
		h := logic.NewRunHistory(conn)
		if err := h.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("create training history table: %w", err)
		}
		history = h
		a.logger.Infow("Training history enabled", "backend", "clickhouse")
	}

	var locker artifacts.Locker = artifacts.NewFileLocker(pipeline.ProductionDir(), cfg.PromotionLockTTL)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.Redis = redis.NewClient(opts)
		a.Cache = logic.NewPredictionCache(a.Redis, cfg.PredictionCacheTTL, logger)
		locker = artifacts.NewRedisLocker(a.Redis, promotionLockKey, cfg.PromotionLockTTL, logger)
		a.logger.Infow("Redis enabled", "uses", []string{"prediction cache", "promotion lock"})
	}

	a.Trainer, err = logic.NewTrainer(logic.TrainerConfig{
		Datasets: a.Datasets,
		Table:    cfg.HistoricalTable,
		Pipeline: pipeline,
		Stager:   artifacts.NewStager(pipeline.StagingDir(), logger),
		History:  history,
		Logger:   logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Promoter = artifacts.NewPromoter(pipeline.StagingDir(), pipeline.ProductionDir(), locker, logger)

	a.Pipeline = logic.NewPipelineService(a.Trainer, a.Promoter, pipeline, a.Cache, logger)
	a.Models = logic.NewModelService(pipeline, history)
	a.Prediction = logic.NewPredictionService(logic.PredictionConfig{
		Datasets:        a.Datasets,
		HistoricalTable: cfg.HistoricalTable,
		CurrentTable:    cfg.CurrentTable,
		ProductionDir:   pipeline.ProductionDir(),
		DefaultTargets:  pipeline.Targets,
		Cache:           a.Cache,
		Logger:          logger,
	})
	return a, nil
}

// Close releases every open backend
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.Warnw("Error closing redis", "error", err)
		}
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.logger.Warnw("Error closing clickhouse", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warnw("Error closing dataset database", "error", err)
		}
	}
}

// NewLogger builds the process logger for env
func NewLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
