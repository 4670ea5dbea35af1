package logic

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/courtvision/nba-analysis/internal/artifacts"
	"github.com/courtvision/nba-analysis/internal/frame"
	"github.com/courtvision/nba-analysis/internal/models"
)

// PgPool defines the interface for PostgreSQL connection pool
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RedisClient defines the interface for Redis client
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// DatasetLoader is the single-query read boundary of the stats database
type DatasetLoader interface {
	Load(ctx context.Context, table string, filter DatasetFilter) (*frame.Frame, error)
}

// RunHistory stores per-candidate training results
type RunHistory interface {
	Record(ctx context.Context, records []models.RunRecord) error
	History(ctx context.Context, target string, limit int) ([]models.RunRecord, error)
}

// PredictionService serves predictions from the production artifacts
type PredictionService interface {
	Predict(ctx context.Context, req models.PredictRequest) ([]models.PlayerPrediction, error)
}

// PipelineService runs training and promotion
type PipelineService interface {
	Train(ctx context.Context, targets []string) (*models.TrainingReport, error)
	Promote(ctx context.Context, targets []string) ([]artifacts.Result, error)
}

// ModelService reports the staged and production model state
type ModelService interface {
	ListModels(ctx context.Context) ([]models.ModelSummary, error)
	History(ctx context.Context, target string, limit int) ([]models.RunRecord, error)
}

// AuthService manages users and access tokens
type AuthService interface {
	Signup(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (*models.TokenResponse, error)
	Authenticate(token string) (string, error)
}
