package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ravewear-storefront/api/controllers"
	webhookcontrollers "github.com/angelmondragon/ravewear-storefront/api/controllers/webhooks"
	"github.com/angelmondragon/ravewear-storefront/api/middleware"
	"github.com/angelmondragon/ravewear-storefront/internal/cart"
	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/metrics"
	"github.com/angelmondragon/ravewear-storefront/pkg/redis"
)

// Services groups the domain services the API exposes.
type Services struct {
	Catalog         controllers.CatalogReader
	Resolver        controllers.VariationResolver
	Cart            cart.Service
	Checkout        controllers.CheckoutService
	StripeWebhook   webhookcontrollers.StripeWebhookService
	StripeGuard     webhookcontrollers.StripeWebhookGuard
	StripeSigner    webhookcontrollers.StripeSigner
	WooWebhook      webhookcontrollers.WooCommerceWebhookService
	CheckoutMetrics *metrics.CheckoutMetrics
}

// Infra is the shared infrastructure behind the API.
type Infra struct {
	DB       controllers.Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	cartPolicy := middleware.NewRateLimitPolicy(
		"cart",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.SessionLimit,
	)
	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.CheckoutLimit,
	)

	var limiter middleware.RateLimiterStore
	var idempotencyStore redis.IdempotencyStore
	var redisPinger controllers.Pinger
	if infra.Redis != nil {
		limiter = infra.Redis
		idempotencyStore = infra.Redis
		redisPinger = infra.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, infra.DB, redisPinger))
	})

	if infra.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(infra.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(svc.StripeWebhook, svc.StripeSigner, svc.StripeGuard, svc.CheckoutMetrics, logg))
			r.Post("/woocommerce", webhookcontrollers.WooCommerceWebhook(svc.WooWebhook, cfg.WooCommerce.WebhookSecret, svc.CheckoutMetrics, logg))
		})

		r.Get("/products/{productId}", controllers.ProductDetail(svc.Catalog, logg))
		r.Post("/products/{productId}/resolve", controllers.ProductResolve(svc.Resolver, logg))

		r.With(middleware.RateLimit(cartPolicy, limiter, logg)).
			Post("/cart/session", controllers.CartSessionStart(cfg.CartSession, logg))

		// Group keeps these routes on the parent mux, so idempotency sees the
		// full route pattern.
		r.Group(func(r chi.Router) {
			r.Use(middleware.CartSession(cfg.CartSession, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(cartPolicy, limiter, logg))
				r.Use(middleware.Idempotency(idempotencyStore, logg))
				r.Get("/cart", controllers.CartFetch(svc.Cart, logg))
				r.Delete("/cart", controllers.CartClear(svc.Cart, logg))
				r.Post("/cart/lines", controllers.CartAddLine(svc.Cart, logg))
				r.Delete("/cart/lines", controllers.CartRemoveLine(svc.Cart, logg))
				r.Put("/cart/lines/quantity", controllers.CartSetQuantity(svc.Cart, logg))
				r.Put("/cart/lines/attributes", controllers.CartSetLineAttribute(svc.Cart, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(checkoutPolicy, limiter, logg))
				r.Use(middleware.Idempotency(idempotencyStore, logg))
				r.Post("/checkout", controllers.CheckoutSubmit(svc.Checkout, logg))
				r.Get("/checkout", controllers.CheckoutFetch(svc.Checkout, logg))
				r.Get("/checkout/confirmation", controllers.CheckoutConfirmation(svc.Checkout, logg))
			})
		})
	})

	return r
}
