package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/taskflow-api/api/swagger"
	"github.com/noah-isme/taskflow-api/internal/handler"
	"github.com/noah-isme/taskflow-api/internal/middleware"
	"github.com/noah-isme/taskflow-api/internal/repository"
	"github.com/noah-isme/taskflow-api/internal/service"
	"github.com/noah-isme/taskflow-api/internal/token"
	"github.com/noah-isme/taskflow-api/pkg/cache"
	"github.com/noah-isme/taskflow-api/pkg/config"
	"github.com/noah-isme/taskflow-api/pkg/database"
	"github.com/noah-isme/taskflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/taskflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/taskflow-api/pkg/middleware/requestid"
)

// @title TaskFlow API
// @version 1.0.0
// @description Task management REST API with JWT authentication
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	codec := token.NewCodec(token.CodecConfig{
		Secret:        cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.Expiration,
		RefreshTTL:    cfg.JWT.RefreshExpiration,
		MaxTokenAge:   cfg.JWT.MaxTokenAge,
	})

	var blacklist token.RevocationStore
	switch cfg.Blacklist.Backend {
	case config.BlacklistBackendRedis:
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		blacklist = token.NewRedisRevocationStore(redisClient, cfg.JWT.Expiration, logr)
	default:
		blacklist = token.NewMemoryRevocationStore(cfg.Blacklist.MaxSize, cfg.JWT.Expiration, logr)
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	token.StartSweeper(sweepCtx, blacklist, cfg.Blacklist.SweepInterval, logr)

	validate := validator.New()
	metricsSvc := service.NewMetricsService(blacklist.Len)

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	authSvc := service.NewAuthService(userRepo, codec, blacklist, validate, metricsSvc, logr)
	taskSvc := service.NewTaskService(taskRepo, validate, metricsSvc, logr)

	secureCookies := cfg.Env == config.EnvProduction
	authHandler := handler.NewAuthHandler(authSvc, secureCookies)
	taskHandler := handler.NewTaskHandler(taskSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	apiLimiter := middleware.NewRateLimiter(cfg.RateLimit.APIMax, cfg.RateLimit.APIWindow, logr)
	authLimiter := middleware.NewRateLimiter(cfg.RateLimit.AuthMax, cfg.RateLimit.AuthWindow, logr)

	api := r.Group(cfg.APIPrefix)
	api.Use(apiLimiter.Middleware())
	api.Use(middleware.CSRF(secureCookies, logr))

	auth := api.Group("/auth")
	auth.POST("/register", authLimiter.Middleware(), authHandler.Register)
	auth.POST("/login", authLimiter.Middleware(), authHandler.Login)
	auth.POST("/refresh", authLimiter.Middleware(), authHandler.Refresh)
	auth.POST("/logout", middleware.Authenticate(codec, blacklist, metricsSvc, logr), authHandler.Logout)
	auth.GET("/me", middleware.Authenticate(codec, blacklist, metricsSvc, logr), authHandler.Me)

	tasks := api.Group("/tasks")
	tasks.Use(middleware.Authenticate(codec, blacklist, metricsSvc, logr))
	tasks.GET("", taskHandler.List)
	tasks.POST("", taskHandler.Create)
	tasks.GET("/statistics", taskHandler.Statistics)
	tasks.GET("/export", taskHandler.Export)
	tasks.GET("/:id", taskHandler.Get)
	tasks.PUT("/:id", taskHandler.Update)
	tasks.DELETE("/:id", taskHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
