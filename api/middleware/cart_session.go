package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/ravewear-storefront/api/responses"
	pkgauth "github.com/angelmondragon/ravewear-storefront/pkg/auth"
	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
)

// CartTokenHeader carries the signed cart-session token.
const CartTokenHeader = "X-Cart-Token"

// CartSession validates the cart-session token and seeds the request context
// with its session id.
func CartSession(cfg config.CartSessionConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(CartTokenHeader))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session token required"))
				return
			}

			claims, err := pkgauth.ParseCartToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid cart session token"))
				return
			}

			ctx := WithCartSessionID(r.Context(), claims.SessionID)
			if logg != nil {
				ctx = logg.WithCartSession(ctx, claims.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
