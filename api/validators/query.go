package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
)

// ParseIDParam reads a positive WooCommerce id from the chi URL parameter key.
func ParseIDParam(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "path parameter required").WithDetails(map[string]any{"field": key})
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "path parameter must be a positive integer").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// RequiredQuery returns the trimmed query value for key, at most maxLen bytes.
func RequiredQuery(r *http.Request, key string, maxLen int) (string, error) {
	value := SanitizeString(r.URL.Query().Get(key), maxLen)
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter required").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
