package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/ravewear-storefront/api/responses"
	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
)

const (
	envHeader    = "X-Ravewear-Env"
	readyTimeout = 2 * time.Second
)

// Pinger is anything the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when postgres and redis both answer a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, db Pinger, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]Pinger{"postgres": db, "redis": cache}
		for name, p := range checks {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" not ready"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
