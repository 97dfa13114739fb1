// Package main records a single networth snapshot and exits. Meant
// for cron-style scheduling where the long-running worker loop is not
// wanted.
package main

import (
	"context"
	"time"

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
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

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

	chainRepo := storage.NewChainRepository(postgres)
	accountRepo := storage.NewAccountRepository(postgres)
	tokenRepo := storage.NewTokenRepository(postgres)
	balanceRepo := storage.NewBalanceRepository(postgres)
	offchainRepo := storage.NewOffchainRepository(postgres)
	networthRepo := storage.NewNetworthRepository(clickhouse)

	registry := chains.NewRegistry(chainRepo, float64(cfg.RateLimit.ChainRequestsPerSec), logger)
	defer registry.Close()

	priceOracle := oracle.NewPriceOracle(registry, logger)
	fiatFeed := oracle.NewSpotFiatFeed(priceOracle, cfg.Oracle.FiatCacheTTL, logger)

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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	snapshot, err := snapshotService.RecordSnapshot(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to record snapshot")
	}

	if snapshot == nil {
		logger.Info("Portfolio is empty, no snapshot recorded")
		return
	}

	logger.WithFields(map[string]interface{}{
		"eth_value":  snapshot.EthValue,
		"fiat_value": snapshot.FiatValue,
	}).Info("Snapshot recorded")
}
