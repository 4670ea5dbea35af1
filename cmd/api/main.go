package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courtvision/nba-analysis/internal/app"
	"github.com/courtvision/nba-analysis/internal/config"
	"github.com/courtvision/nba-analysis/internal/handlers"
	"github.com/courtvision/nba-analysis/internal/logic"
	"github.com/courtvision/nba-analysis/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.RequireServer(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		sugar.Fatalw("Failed to initialize", "error", err)
	}
	defer a.Close()

	pg, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		sugar.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer pg.Close()
	if err := logic.EnsureUsersSchema(ctx, pg); err != nil {
		sugar.Fatalw("Failed to create users table", "error", err)
	}

	tokens, err := logic.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		sugar.Fatalw("Failed to create token manager", "error", err)
	}

	pool := worker.NewPool(worker.PoolConfig{
		QueueSize: cfg.PipelineQueueSize,
		Pipeline:  a.Pipeline,
		Logger:    logger,
	})
	pool.Start(ctx)

	checks := map[string]handlers.Pinger{
		"datasets": a.Datasets,
		"postgres": pg,
	}
	if a.ClickHouse != nil {
		checks["clickhouse"] = a.ClickHouse
	}
	if a.Redis != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		})
	}

	h := handlers.New(handlers.Config{
		WorkerPool: pool,
		Checks:     checks,
		Logger:     logger,
		Targets:    cfg.Pipeline.Targets,
		Prediction: a.Prediction,
		Models:     a.Models,
		Auth:       logic.NewAuthService(pg, tokens, logger),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h.Routes(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("API listening", "addr", srv.Addr, "env", cfg.Env, "targets", cfg.Pipeline.Targets)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		sugar.Info("Shutting down")
	case err := <-errCh:
		sugar.Errorw("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("Graceful shutdown failed", "error", err)
	}
	pool.Stop()
	sugar.Info("Stopped")
}
