// Package main runs the community membership HTTP server with graceful shutdown.
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

	"github.com/Leela143-143/MUN/config"
	"github.com/Leela143-143/MUN/internal/auth"
	"github.com/Leela143-143/MUN/internal/authority"
	"github.com/Leela143-143/MUN/internal/communities"
	"github.com/Leela143-143/MUN/internal/events"
	"github.com/Leela143-143/MUN/internal/membership"
	"github.com/Leela143-143/MUN/internal/middleware"
	"github.com/Leela143-143/MUN/internal/models"
	"github.com/Leela143-143/MUN/internal/users"
	"github.com/Leela143-143/MUN/internal/worker"
	"github.com/Leela143-143/MUN/pkg/database"
	"github.com/Leela143-143/MUN/pkg/queue"
	"github.com/Leela143-143/MUN/pkg/redis"
	"github.com/Leela143-143/MUN/pkg/response"
	"github.com/Leela143-143/MUN/pkg/storage"
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

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		LogoBucket:      cfg.AWS.LogoBucket,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	userRepo := users.NewRepository(pool)
	communityRepo := communities.NewRepository(pool)
	eventRepo := events.NewRepository(pool)
	allocator := membership.NewAllocator(pool)
	roleAuthority := authority.New(userRepo, rdb.Client, cfg.Owner.Email, logger)

	authHandler := auth.NewHandler(userRepo, allocator, roleAuthority, jwtService, logger)
	communityHandler := communities.NewHandler(communityRepo, allocator, userRepo, eventRepo, s3Client, jobQueue, logger)
	eventHandler := events.NewHandler(eventRepo, communityRepo, logger)
	userHandler := users.NewHandler(userRepo, communityRepo, logger)

	logoCleaner := worker.NewLogoCleaner(s3Client, jobQueue, logger)

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
		authGroup.POST("/signup", authHandler.Signup)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Role management (owner only; re-checked against the database in the handler)
		api.POST("/auth/add-admin", middleware.RequireRole(models.RoleOwner), authHandler.AddAdmin)
		api.POST("/auth/remove-admin", middleware.RequireRole(models.RoleOwner), authHandler.RemoveAdmin)

		// Communities
		api.GET("/community", communityHandler.List)
		api.POST("/community", middleware.RequireRole(models.RoleAdmin, models.RoleOwner), communityHandler.Create)
		api.GET("/community/:id", communityHandler.GetByID)
		api.GET("/community/:id/countries", communityHandler.Countries)
		api.POST("/community/:id/countries/:country/claim", communityHandler.ClaimCountry)
		api.DELETE("/community/:id/countries/:country", middleware.RequireRole(models.RoleAdmin, models.RoleOwner), communityHandler.ReleaseCountry)
		api.PUT("/community/:id/logo", middleware.RequireRole(models.RoleAdmin, models.RoleOwner), communityHandler.UpdateLogo)

		// Events
		api.GET("/community/:id/events", eventHandler.ListByCommunity)
		api.POST("/community/:id/events", middleware.RequireRole(models.RoleAdmin, models.RoleOwner), eventHandler.Create)
		api.DELETE("/community/:id/events/:eventId", middleware.RequireRole(models.RoleAdmin, models.RoleOwner), eventHandler.Delete)

		// Users
		api.GET("/user", middleware.RequireRole(models.RoleAdmin, models.RoleOwner), userHandler.List)
		api.GET("/user/community/:communityId", middleware.RequireRole(models.RoleAdmin, models.RoleOwner), userHandler.ListByCommunity)
		api.GET("/user/:id", userHandler.GetByID)
		api.PUT("/user/:id", userHandler.Update)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background logo cleanup (best-effort deletion of superseded logos)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go logoCleaner.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
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
