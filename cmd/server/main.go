package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/cache"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/config"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/handlers"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/metrics"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/middleware"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/monitor"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/storage"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/validator"
	"github.com/SAP-F-2025/exam-proctoring-service/pkg"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "run database migrations and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(utils.LogOptions{
		Environment: cfg.Environment,
		File:        cfg.LogFile,
	})
	slogger := utils.ToSlogLogger(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}
	if err := pkg.Migrate(db); err != nil {
		logger.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}
	if *migrateOnly {
		logger.Info("Database migrated")
		return
	}

	// Redis backs the live snapshot cache and, when selected, the event broker.
	var redisClient *redis.Client
	cacheService := cache.NewMemoryCache()
	if client, err := pkg.NewRedisClient(cfg); err != nil {
		logger.Warn("Redis unavailable, using in-memory cache", "error", err)
	} else {
		redisClient = client
		defer redisClient.Close()
		cacheService = cache.NewRedisCache(redisClient, slogger)
	}

	broker, err := cfg.Events.CreateBroker(slogger, redisClient)
	if err != nil {
		logger.LogError(err, "Failed to create event broker")
		os.Exit(1)
	}
	defer broker.Close()

	storageProvider, err := storage.NewProvider(&cfg.Storage)
	if err != nil {
		logger.LogError(err, "Failed to create storage provider")
		os.Exit(1)
	}

	serviceManager := services.NewServiceManager(
		postgres.NewRepository(db),
		storageProvider,
		broker,
		cacheService,
		slogger,
		validator.New(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := monitor.NewHub(serviceManager.Monitoring(), serviceManager.Proctoring(), slogger.With("component", "monitor"))
	go func() {
		if err := hub.Run(ctx, broker); err != nil {
			logger.LogError(err, "Monitor hub subscription ended")
		}
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	router := gin.New()
	router.Use(gin.Recovery(), utils.LoggerMiddleware(logger), metrics.MetricsMiddleware())
	if cfg.Storage.Driver == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}
	handlers.NewHandlerManager(serviceManager, hub, middleware.NewCasdoorParser(cfg.Auth), logger).SetupRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server running", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(err, "Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogError(err, "Server forced to shutdown")
	}

	logger.Info("Server exited")
}
