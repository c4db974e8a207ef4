package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/ravewear-storefront/api/routes"
	"github.com/angelmondragon/ravewear-storefront/internal/cart"
	"github.com/angelmondragon/ravewear-storefront/internal/catalog"
	"github.com/angelmondragon/ravewear-storefront/internal/checkout"
	"github.com/angelmondragon/ravewear-storefront/internal/reconcile"
	"github.com/angelmondragon/ravewear-storefront/internal/variation"
	stripewebhook "github.com/angelmondragon/ravewear-storefront/internal/webhooks/stripe"
	woowebhook "github.com/angelmondragon/ravewear-storefront/internal/webhooks/woocommerce"
	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	"github.com/angelmondragon/ravewear-storefront/pkg/db"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/metrics"
	"github.com/angelmondragon/ravewear-storefront/pkg/migrate"
	"github.com/angelmondragon/ravewear-storefront/pkg/redis"
	"github.com/angelmondragon/ravewear-storefront/pkg/stripe"
	"github.com/angelmondragon/ravewear-storefront/pkg/woocommerce"
)

const shutdownTimeout = 15 * time.Second

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
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	requireResource(logg, "dev migrations", migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient))

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	requireResource(logg, "stripe client", err)
	payments, err := stripe.NewPayments(stripeClient, logg)
	requireResource(logg, "stripe payments", err)

	wooClient, err := woocommerce.NewClient(cfg.WooCommerce)
	requireResource(logg, "woocommerce client", err)
	gateway, err := catalog.NewCachedGateway(wooClient, redisClient, cfg.Cache, logg)
	requireResource(logg, "catalog gateway", err)

	resolver, err := variation.NewResolver(gateway)
	requireResource(logg, "variation resolver", err)

	cartStore, err := cart.NewRedisStore(redisClient, cfg.CartSession.StateTTL)
	requireResource(logg, "cart store", err)
	cartService, err := cart.NewService(cart.ServiceParams{
		Store:    cartStore,
		Resolver: resolver,
		Catalog:  gateway,
		Locker:   redisClient,
		LockTTL:  cfg.CartSession.LockTTL,
		Logger:   logg,
	})
	requireResource(logg, "cart service", err)

	reconciler, err := reconcile.NewService(payments, gateway, logg)
	requireResource(logg, "reconcile service", err)

	sessions, err := checkout.NewSessionStore(redisClient, cfg.Checkout.SessionTTL)
	requireResource(logg, "checkout session store", err)
	attempts := checkout.NewAttemptRepository(dbClient.DB())
	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	orchestrator, err := checkout.NewOrchestrator(checkout.OrchestratorParams{
		Carts:         cartService,
		Orders:        gateway,
		Payments:      payments,
		Reconciler:    reconciler,
		Sessions:      sessions,
		Attempts:      attempts,
		Locker:        redisClient,
		Metrics:       checkoutMetrics,
		Logger:        logg,
		Currency:      stripeClient.Currency(),
		ReturnURL:     cfg.Checkout.ReturnURL(cfg.App.PublicURL),
		LockTTL:       cfg.Checkout.LockTTL,
		ActionTimeout: cfg.Checkout.ActionTimeout,
	})
	requireResource(logg, "checkout orchestrator", err)

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Attempts: attempts,
		Orders:   gateway,
		Logger:   logg,
	})
	requireResource(logg, "stripe webhook service", err)
	stripeGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Checkout.WebhookEventTTL, "stripe-webhook")
	requireResource(logg, "stripe webhook guard", err)

	wooWebhookService, err := woowebhook.NewService(gateway, logg)
	requireResource(logg, "woocommerce webhook service", err)

	handler := routes.NewRouter(cfg, logg, routes.Infra{
		DB:       dbClient,
		Redis:    redisClient,
		Gatherer: prometheus.DefaultGatherer,
	}, routes.Services{
		Catalog:         gateway,
		Resolver:        resolver,
		Cart:            cartService,
		Checkout:        orchestrator,
		StripeWebhook:   stripeWebhookService,
		StripeGuard:     stripeGuard,
		StripeSigner:    stripeClient,
		WooWebhook:      wooWebhookService,
		CheckoutMetrics: checkoutMetrics,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}

func requireResource(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to bootstrap "+name, err)
	os.Exit(1)
}
