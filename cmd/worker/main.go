// Package main runs the background job worker (session stats finalization
// and moderation request expiry sweeps).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulsehq/backend/config"
	"github.com/pulsehq/backend/internal/moderation"
	"github.com/pulsehq/backend/internal/sessions"
	"github.com/pulsehq/backend/internal/worker"
	"github.com/pulsehq/backend/pkg/database"
	"github.com/pulsehq/backend/pkg/queue"
	"github.com/pulsehq/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	sessionRepo := sessions.NewRepository(pool)
	moderationRepo := moderation.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	sweepInterval := time.Duration(cfg.Worker.ModerationSweepSeconds) * time.Second
	processor := worker.NewProcessor(sessionRepo, moderationRepo, jobQueue, sweepInterval, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
