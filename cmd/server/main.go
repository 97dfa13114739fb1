// Package main provides the API server entry point for the networth
// tracker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/networth-tracker/internal/api"
	"github.com/networth-tracker/internal/chains"
	"github.com/networth-tracker/internal/config"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/oracle"
	"github.com/networth-tracker/internal/queue"
	"github.com/networth-tracker/internal/scheduler"
	"github.com/networth-tracker/internal/service"
	"github.com/networth-tracker/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisDB(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	chainRepo := storage.NewChainRepository(postgres)
	accountRepo := storage.NewAccountRepository(postgres)
	tokenRepo := storage.NewTokenRepository(postgres)
	balanceRepo := storage.NewBalanceRepository(postgres)
	offchainRepo := storage.NewOffchainRepository(postgres)
	networthRepo := storage.NewNetworthRepository(clickhouse)

	// Initialize chain access and the price oracle
	registry := chains.NewRegistry(chainRepo, float64(cfg.RateLimit.ChainRequestsPerSec), logger)
	defer registry.Close()

	priceOracle := oracle.NewPriceOracle(registry, logger)
	fiatFeed := oracle.NewSpotFiatFeed(priceOracle, cfg.Oracle.FiatCacheTTL, logger)

	// Initialize the check queues. The server only enqueues; the
	// worker binary consumes.
	queueOpts := queue.Options{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		BackoffBase:       cfg.Queue.BackoffBase,
		BackoffMax:        cfg.Queue.BackoffMax,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	}

	nativeOpts := queueOpts
	nativeOpts.Name = "native"
	nativeQueue := queue.NewRedisQueue(redis.Client(), nativeOpts, logger)

	erc20Opts := queueOpts
	erc20Opts.Name = "erc20"
	erc20Queue := queue.NewRedisQueue(redis.Client(), erc20Opts, logger)

	// Initialize services
	logger.Info("Initializing services...")

	taskScheduler := scheduler.NewScheduler(accountRepo, tokenRepo, nativeQueue, erc20Queue, logger)
	portfolioService := service.NewPortfolioService(balanceRepo, offchainRepo, networthRepo, accountRepo, logger)
	tokenService := service.NewTokenService(registry, tokenRepo, logger)
	offchainService := service.NewOffchainService(offchainRepo, accountRepo, logger)

	logger.Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequestsPerSec:  cfg.RateLimit.APIRequestsPerSecond,
	}

	server := api.NewServer(serverConfig, &api.ServerDeps{
		PortfolioService: portfolioService,
		TokenService:     tokenService,
		OffchainService:  offchainService,
		Scheduler:        taskScheduler,
		FiatFeed:         fiatFeed,
		ChainRepo:        chainRepo,
		AccountRepo:      accountRepo,
		FiatCurrency:     cfg.Oracle.FiatCurrency,
	}, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
