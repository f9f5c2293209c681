package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medvoyage/content-service/config"
	"github.com/medvoyage/content-service/internal/database"
	"github.com/medvoyage/content-service/internal/generator"
	"github.com/medvoyage/content-service/internal/handlers"
	"github.com/medvoyage/content-service/internal/kvstore"
	"github.com/medvoyage/content-service/internal/middleware"
	"github.com/medvoyage/content-service/internal/queue"
	"github.com/medvoyage/content-service/internal/sweepers"
	"github.com/medvoyage/content-service/internal/telemetry"
	"github.com/medvoyage/content-service/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting content service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	store, err := kvstore.NewRedis(ctx, kvstore.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to queue store")
	}
	defer store.Close()
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Queue store connected")

	var dbStatus func() error
	var contentStore worker.ContentStore
	if cfg.Database.URL != "" {
		if err := database.Connect(
			ctx,
			cfg.Database.URL,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
			cfg.Database.MaxConnLifetime,
			cfg.Database.MaxConnIdleTime,
		); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()
		logger.Info().Msg("Database connected")

		dbStatus = func() error { return database.Status(context.Background()) }
		contentStore = database.NewContentStore(database.Pool())
	} else {
		logger.Warn().Msg("DATABASE_URL not set, results stay on job records only")
	}

	q := queue.New(store, queuePolicy(cfg), logger)
	h := handlers.New(q, logger, dbStatus)

	sweeper := sweepers.NewQueueSweeper(q, logger,
		cfg.Queue.PromoteInterval, cfg.Queue.ReclaimInterval, cfg.Queue.PurgeInterval)

	var w *worker.Worker
	if cfg.Worker.Enabled {
		gen := generator.NewClient(generator.ClientConfig{
			BaseURL:           cfg.Generator.BaseURL,
			APIKey:            cfg.Generator.APIKey,
			Timeout:           cfg.Generator.Timeout,
			RequestsPerSecond: cfg.Generator.RequestsPerSecond,
			Burst:             cfg.Generator.Burst,
		}, logger)
		w = worker.New(q, gen, contentStore, worker.Config{
			WorkerID:      cfg.Worker.WorkerID,
			PollInterval:  cfg.Worker.PollInterval,
			InterJobDelay: cfg.Worker.InterJobDelay,
		}, logger)
	}

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuth(cfg.Server.InternalAPIKey))
	internal.Use(middleware.RateLimit(middleware.RateLimiterConfig{RequestsPerSecond: 50, BurstSize: 100}))
	{
		internal.GET("/health", h.HealthCheck)

		jobs := internal.Group("/jobs")
		{
			jobs.POST("", h.SubmitJob)
			jobs.GET("", h.ListJobs)
			jobs.GET("/:jobId", h.GetJob)
			jobs.DELETE("/:jobId", h.CancelJob)
			jobs.POST("/:jobId/replay", h.ReplayJob)
		}

		batches := internal.Group("/batches")
		{
			batches.POST("", h.SubmitBatch)
			batches.GET("/:batchId", h.GetBatch)
			batches.GET("/:batchId/progress", h.GetBatchProgress)
		}

		stats := internal.Group("/stats")
		{
			stats.GET("", h.GetQueueStats)
			stats.GET("/daily", h.GetStatsRange)
			stats.GET("/export", h.ExportStats)
		}

		admin := internal.Group("/admin")
		{
			admin.POST("/reclaim", h.TriggerReclaim)
			admin.POST("/purge", h.TriggerPurge)
			admin.POST("/promote", h.TriggerPromote)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})
	if w != nil {
		w.Start(gctx)
	}
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	sweeper.Stop()
	if w != nil {
		w.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	cancel()
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Background loop exited with error")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Telemetry shutdown failed")
	}

	logger.Info().Msg("Server exited")
}

func queuePolicy(cfg *config.Config) queue.Policy {
	policy := queue.DefaultPolicy()
	if cfg.Queue.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Queue.MaxAttempts
	}
	if cfg.Queue.InitialDelay > 0 {
		policy.InitialDelay = cfg.Queue.InitialDelay
	}
	if cfg.Queue.BackoffMultiplier > 1 {
		policy.BackoffMultiplier = cfg.Queue.BackoffMultiplier
	}
	if cfg.Queue.MaxDelay > 0 {
		policy.MaxDelay = cfg.Queue.MaxDelay
	}
	if cfg.Queue.ProcessingTimeout > 0 {
		policy.ProcessingTimeout = cfg.Queue.ProcessingTimeout
	}
	if cfg.Queue.CompletedRetention > 0 {
		policy.CompletedRetention = cfg.Queue.CompletedRetention
	}
	if cfg.Queue.DeadRetention > 0 {
		policy.DeadRetention = cfg.Queue.DeadRetention
	}
	return policy
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "content-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
