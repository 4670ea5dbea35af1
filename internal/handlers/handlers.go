package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/logic"
	"github.com/courtvision/nba-analysis/internal/models"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// PipelineQueue defines the interface for the pipeline job worker
type PipelineQueue interface {
	Enqueue(kind models.JobKind, targets []string) (models.JobStatus, bool)
	Job(id string) (models.JobStatus, bool)
	QueueDepth() int
}

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Config struct {
	WorkerPool PipelineQueue
	// Checks maps a dependency name to its readiness probe
	Checks map[string]Pinger
	Logger *zap.Logger
	// Targets lists the configured prediction targets
	Targets []string
	// Services
	Prediction logic.PredictionService
	Models     logic.ModelService
	Auth       logic.AuthService
}

type Handler struct {
	pool       PipelineQueue
	checks     map[string]Pinger
	logger     *zap.SugaredLogger
	validator  *validator.Validate
	targets    map[string]bool
	prediction logic.PredictionService
	models     logic.ModelService
	auth       logic.AuthService
}

func New(cfg Config) *Handler {
	targets := make(map[string]bool, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets[t] = true
	}
	return &Handler{
		pool:       cfg.WorkerPool,
		checks:     cfg.Checks,
		logger:     cfg.Logger.Sugar(),
		validator:  validator.New(),
		targets:    targets,
		prediction: cfg.Prediction,
		models:     cfg.Models,
		auth:       cfg.Auth,
	}
}
