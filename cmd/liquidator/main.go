package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bimakw/blue-liquidator/internal/config"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/cache"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/database"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/morphoapi"
	"github.com/bimakw/blue-liquidator/internal/presentation/handlers"
	"github.com/bimakw/blue-liquidator/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	logger.Info("Starting blue-liquidator",
		zap.Int("chains", len(cfg.Chains)),
		zap.String("checkpoint_backend", cfg.Checkpoint.Backend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Checkpoint database (postgres backend only)
	var db *database.PostgresDB
	if cfg.Checkpoint.Backend == "postgres" {
		db, err = database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
	}

	// Redis backs the shared cooldown and the decimals cache (optional)
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Failed to connect to Redis, running with in-process cooldowns", zap.Error(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	api := morphoapi.NewClient(cfg.Liquidation.MorphoAPIURL, logger)

	var (
		chains   []*chain
		statuses []handlers.StatusProvider
		views    = make(map[int64]handlers.ChainView)
	)
	for _, chainCfg := range cfg.Chains {
		c, err := buildChain(ctx, cfg, chainCfg, infra{db: db, redis: redisCache, api: api}, logger)
		if err != nil {
			logger.Fatal("Failed to set up chain",
				zap.Int64("chain_id", chainCfg.ChainID),
				zap.String("name", chainCfg.Name),
				zap.Error(err),
			)
		}
		defer c.close()

		chains = append(chains, c)
		statuses = append(statuses, c.indexer)
		views[chainCfg.ChainID] = c.indexer
	}

	// Chains run independently; one failing never stops the others
	for _, c := range chains {
		c.runner.Start(ctx)
	}

	server := newOpsServer(cfg, db, redisCache, statuses, views, logger)
	go func() {
		logger.Info("Ops server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, stopping chains...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	cancel()
	for _, c := range chains {
		c.runner.Stop()
	}

	logger.Info("Liquidator stopped")
}

func newOpsServer(
	cfg *config.Config,
	db *database.PostgresDB,
	redisCache *cache.RedisCache,
	statuses []handlers.StatusProvider,
	views map[int64]handlers.ChainView,
	logger *zap.Logger,
) *http.Server {
	var dbChecker, cacheChecker handlers.HealthChecker
	if db != nil {
		dbChecker = db
	}
	if redisCache != nil {
		cacheChecker = redisCache
	}
	healthHandler := handlers.NewHealthHandler(dbChecker, cacheChecker, statuses)
	chainHandler := handlers.NewChainHandler(views, logger)

	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)

	// Health checks and metrics are not rate limited
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))
		chainHandler.RegisterRoutes(r)
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}
}

func setupLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoding := "json"
	encoderConfig := zap.NewProductionEncoderConfig()
	if format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	return logger
}
