package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/ravewear-storefront/pkg/config"
)

// CORS returns middleware that applies the storefront's allowed origin policy.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", CartTokenHeader, idempotencyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{CartTokenHeader, requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
