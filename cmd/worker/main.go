// Package main provides the balance check worker entry point. It
// consumes both check queues and runs the periodic networth snapshot
// job.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/networth-tracker/internal/chains"
	"github.com/networth-tracker/internal/config"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/oracle"
	"github.com/networth-tracker/internal/queue"
	"github.com/networth-tracker/internal/scheduler"
	"github.com/networth-tracker/internal/service"
	"github.com/networth-tracker/internal/storage"
	"github.com/networth-tracker/internal/worker"
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
	logger.Info("Worker starting...")

	// Initialize database connections
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

	// Initialize the check queues
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

	// Initialize handlers and pools
	nativeHandler := worker.NewNativeHandler(registry, accountRepo, tokenRepo, balanceRepo, logger)
	erc20Handler := worker.NewERC20Handler(registry, priceOracle, accountRepo, tokenRepo, balanceRepo, logger)

	nativePool, err := worker.NewPool(&worker.PoolConfig{
		Name:        "native",
		Queue:       nativeQueue,
		Handler:     nativeHandler,
		Concurrency: cfg.Queue.NativeConcurrency,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create native worker pool")
	}

	erc20Pool, err := worker.NewPool(&worker.PoolConfig{
		Name:        "erc20",
		Queue:       erc20Queue,
		Handler:     erc20Handler,
		Concurrency: cfg.Queue.ERC20Concurrency,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create erc20 worker pool")
	}

	// Initialize the snapshot job
	taskScheduler := scheduler.NewScheduler(accountRepo, tokenRepo, nativeQueue, erc20Queue, logger)
	portfolioService := service.NewPortfolioService(balanceRepo, offchainRepo, networthRepo, accountRepo, logger)
	snapshotService := service.NewSnapshotService(
		portfolioService,
		networthRepo,
		fiatFeed,
		taskScheduler,
		cfg.Oracle.FiatCurrency,
		cfg.Snapshot.Interval,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := nativePool.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start native worker pool")
	}
	if err := erc20Pool.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start erc20 worker pool")
	}
	if err := snapshotService.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start snapshot service")
	}

	logger.Info("Worker started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := snapshotService.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Snapshot service shutdown failed")
	}
	if err := nativePool.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Native worker pool shutdown failed")
	}
	if err := erc20Pool.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("ERC20 worker pool shutdown failed")
	}

	logger.Info("Worker exited")
}
