package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/ravewear-storefront/internal/catalog"
	"github.com/angelmondragon/ravewear-storefront/internal/checkout"
	"github.com/angelmondragon/ravewear-storefront/internal/cron"
	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	"github.com/angelmondragon/ravewear-storefront/pkg/db"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/metrics"
	"github.com/angelmondragon/ravewear-storefront/pkg/migrate"
	"github.com/angelmondragon/ravewear-storefront/pkg/redis"
	"github.com/angelmondragon/ravewear-storefront/pkg/stripe"
	"github.com/angelmondragon/ravewear-storefront/pkg/woocommerce"
)

const lockKeyFormat = "rw:cron-worker:lock:%s"

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

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	payments, err := stripe.NewPayments(stripeClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe payments", err)
		os.Exit(1)
	}

	wooClient, err := woocommerce.NewClient(cfg.WooCommerce)
	if err != nil {
		logg.Error(context.Background(), "failed to create woocommerce client", err)
		os.Exit(1)
	}
	gateway, err := catalog.NewCachedGateway(wooClient, redisClient, cfg.Cache, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog gateway", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	orphanJob, err := cron.NewOrphanOrderJob(cron.OrphanOrderJobParams{
		Logger:    logg,
		Attempts:  checkout.NewAttemptRepository(dbClient.DB()),
		Orders:    gateway,
		Payments:  payments,
		Metrics:   metricsCollector,
		OrphanTTL: cfg.Checkout.OrphanTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orphan order job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(orphanJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
