package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zeuslykraios/alauda-api/api/routes"
	"github.com/zeuslykraios/alauda-api/internal/content"
	"github.com/zeuslykraios/alauda-api/internal/gate"
	"github.com/zeuslykraios/alauda-api/internal/keys"
	"github.com/zeuslykraios/alauda-api/internal/payments"
	"github.com/zeuslykraios/alauda-api/internal/payments/providers"
	"github.com/zeuslykraios/alauda-api/internal/usage"
	"github.com/zeuslykraios/alauda-api/internal/webhooks"
	"github.com/zeuslykraios/alauda-api/pkg/config"
	"github.com/zeuslykraios/alauda-api/pkg/db"
	"github.com/zeuslykraios/alauda-api/pkg/env"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
	"github.com/zeuslykraios/alauda-api/pkg/metrics"
	"github.com/zeuslykraios/alauda-api/pkg/migrate"
	"github.com/zeuslykraios/alauda-api/pkg/pubsub"
	"github.com/zeuslykraios/alauda-api/pkg/redis"
	"github.com/zeuslykraios/alauda-api/pkg/square"
)

const webhookReplayTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	gateMetrics := metrics.NewGateMetrics(registry)

	var usagePublisher usage.Publisher
	if cfg.GCP.ProjectID != "" && cfg.PubSub.UsageTopic != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		usagePublisher = &usage.TopicPublisher{Topic: pubsubClient.UsagePublisher()}
	}

	keyRepo := keys.NewRepository(dbClient.DB())
	keyService, err := keys.NewService(keys.ServiceParams{Repo: keyRepo, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create key service", err)
		os.Exit(1)
	}

	usageService := usage.NewService(usage.ServiceParams{
		Repo:      usage.NewRepository(dbClient.DB()),
		Logger:    logg,
		Publisher: usagePublisher,
	})

	tz, err := time.LoadLocation(cfg.Quota.Timezone)
	if err != nil {
		logg.Error(context.Background(), "failed to load quota timezone", err)
		os.Exit(1)
	}
	gateService, err := gate.NewService(gate.ServiceParams{
		Keys:           keyRepo,
		Usage:          usageService,
		Logger:         logg,
		Metrics:        gateMetrics,
		Timezone:       tz,
		PartnerToken:   cfg.Gate.PartnerHeaderValue,
		ConsumeRetries: cfg.Gate.ConsumeRetries,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gate service", err)
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

	stripeGuard, err := webhooks.NewReplayGuard(redisClient, webhookReplayTTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create replay guard", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(routes.Deps{
		Config:       cfg,
		Logger:       logg,
		DB:           dbClient,
		Redis:        redisClient,
		Registry:     registry,
		Gate:         gateService,
		KeyAuth:      keyService,
		Keys:         keyService,
		Usage:        usageService,
		Payments:     paymentService,
		Fetcher:      content.NewCDNFetcher(""),
		MpesaParser:  providers.NewMpesaParser(cfg.Mpesa.WebhookSecret),
		EmolaParser:  providers.NewEmolaParser(cfg.Emola.WebhookSecret),
		StripeParser: providers.NewStripeParser(cfg.Stripe.SigningSecret),
		StripeGuard:  stripeGuard,
		Reconciler:   paymentService,
	})

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
