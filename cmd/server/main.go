// Package main runs the live session HTTP server with WebSocket fan-out and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulsehq/backend/config"
	"github.com/pulsehq/backend/internal/auth"
	"github.com/pulsehq/backend/internal/communities"
	"github.com/pulsehq/backend/internal/middleware"
	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/internal/moderation"
	"github.com/pulsehq/backend/internal/participants"
	"github.com/pulsehq/backend/internal/reactions"
	"github.com/pulsehq/backend/internal/realtime"
	"github.com/pulsehq/backend/internal/sessions"
	"github.com/pulsehq/backend/internal/streaming"
	"github.com/pulsehq/backend/pkg/database"
	"github.com/pulsehq/backend/pkg/queue"
	"github.com/pulsehq/backend/pkg/redis"
	"github.com/pulsehq/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	streamProvider := streaming.NewProvider(cfg.Stream.BaseURL)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Communities (read-only membership lookups)
	communityRepo := communities.NewRepository(pool)

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	sessionSvc := sessions.NewService(sessionRepo, streamProvider, communityRepo, jobQueue, logger)
	sessionHandler := sessions.NewHandler(sessionSvc, hub)

	// Participants
	participantRepo := participants.NewRepository(pool)
	participantSvc := participants.NewService(participantRepo, sessionRepo, communityRepo, logger)
	participantHandler := participants.NewHandler(participantSvc, hub)

	// Moderation
	moderationRepo := moderation.NewRepository(pool)
	moderationSvc := moderation.NewService(moderationRepo, sessionRepo, participantSvc, logger)
	moderationHandler := moderation.NewHandler(moderationSvc, hub)

	// Reactions
	reactionRepo := reactions.NewRepository(pool)
	reactionSvc := reactions.NewService(reactionRepo, sessionRepo, participantRepo, logger)
	reactionHandler := reactions.NewHandler(reactionSvc, hub)

	jwtValidate := func(token string) (string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.UserID.String(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)

		// Sessions
		api.POST("/sessions", sessionHandler.Create)
		api.GET("/sessions", sessionHandler.ListMine)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.PATCH("/sessions/:id", sessionHandler.Update)
		api.DELETE("/sessions/:id", sessionHandler.Delete)
		api.POST("/sessions/:id/start", sessionHandler.Start)
		api.POST("/sessions/:id/end", sessionHandler.End)
		api.GET("/communities/:id/sessions", sessionHandler.ListByCommunity)

		// Participants
		api.POST("/sessions/:id/join", participantHandler.Join)
		api.POST("/sessions/:id/leave", participantHandler.Leave)
		api.GET("/sessions/:id/can-join", participantHandler.CanJoin)
		api.GET("/sessions/:id/participants", participantHandler.List)
		api.PATCH("/sessions/:id/stream-state", participantHandler.UpdateStreamState)
		api.POST("/sessions/:id/participants/:participantId/remove", participantHandler.Remove)

		// Moderation
		api.POST("/sessions/:id/moderation-requests", moderationHandler.Create)
		api.GET("/sessions/:id/moderation-requests", moderationHandler.ListPending)
		api.POST("/moderation-requests/:id/review", moderationHandler.Review)

		// Reactions
		api.POST("/sessions/:id/reactions", reactionHandler.React)
		api.GET("/sessions/:id/reactions", reactionHandler.List)
		api.GET("/sessions/:id/reactions/summary", reactionHandler.Summary)
		api.DELETE("/sessions/:id/reactions/:reactionId", reactionHandler.Remove)

		// Platform operators
		admin := api.Group("/admin")
		admin.Use(middleware.RequireRole(string(models.RoleAdmin)))
		admin.GET("/sessions", sessionHandler.ListAll)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
