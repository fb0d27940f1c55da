package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeuslykraios/alauda-api/internal/cron"
	"github.com/zeuslykraios/alauda-api/internal/keys"
	"github.com/zeuslykraios/alauda-api/internal/payments"
	"github.com/zeuslykraios/alauda-api/internal/payments/providers"
	"github.com/zeuslykraios/alauda-api/internal/usage"
	"github.com/zeuslykraios/alauda-api/pkg/config"
	"github.com/zeuslykraios/alauda-api/pkg/db"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
	"github.com/zeuslykraios/alauda-api/pkg/metrics"
	"github.com/zeuslykraios/alauda-api/pkg/migrate"
	"github.com/zeuslykraios/alauda-api/pkg/redis"
	"github.com/zeuslykraios/alauda-api/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	keyRepo := keys.NewRepository(dbClient.DB())
	keyService, err := keys.NewService(keys.ServiceParams{Repo: keyRepo, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create key service", err)
		os.Exit(1)
	}

	var statusPoller payments.StatusPoller
	if cfg.Square.AccessToken != "" {
		squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap square client", err)
			os.Exit(1)
		}
		statusPoller = providers.NewSquarePoller(squareClient)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:        payments.NewRepository(dbClient.DB()),
		Granter:     keyService,
		Logger:      logg,
		Poller:      statusPoller,
		PendingTTL:  cfg.Payments.PendingTTL,
		PollTimeout: cfg.Payments.ProviderTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	usageService := usage.NewService(usage.ServiceParams{
		Repo:   usage.NewRepository(dbClient.DB()),
		Logger: logg,
	})

	sweepJob, err := cron.NewPaymentSweepJob(cron.PaymentSweepJobParams{
		Logger:   logg,
		Payments: paymentService,
		Limit:    cfg.Cron.SweepBatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment sweep job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:   logg,
		Payments: paymentService,
		Limit:    cfg.Cron.SweepBatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment expiry job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewUsageRetentionJob(cron.UsageRetentionJobParams{
		Logger: logg,
		Usage:  usageService,
		MaxAge: cfg.Cron.UsageMaxAge,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	registry.Register(sweepJob, cfg.Cron.PendingSweep)
	registry.Register(expiryJob, cfg.Cron.ExpirySweep)
	registry.Register(retentionJob, cfg.Cron.UsageRetention)

	var locks cron.LockProvider
	if !cfg.Cron.DisableRedisLock {
		locks = cron.NewRedisLockProvider(redisClient, cfg.Cron.LockTTL)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locks:    locks,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
