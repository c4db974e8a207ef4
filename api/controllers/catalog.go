package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/ravewear-storefront/api/responses"
	"github.com/angelmondragon/ravewear-storefront/api/validators"
	"github.com/angelmondragon/ravewear-storefront/internal/variation"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

type CatalogReader interface {
	FetchProduct(ctx context.Context, id int64) (*types.Product, error)
	FetchVariations(ctx context.Context, productID int64) ([]types.Variation, error)
}

type VariationResolver interface {
	Resolve(ctx context.Context, productID int64, chosen map[string]string) (*variation.Resolution, error)
}

type productResponse struct {
	*types.Product
	Variations []types.Variation `json:"variations"`
}

type resolveRequest struct {
	Attributes []types.SelectedAttribute `json:"attributes" validate:"dive"`
}

// ProductDetail returns a product with its variations.
func ProductDetail(catalog CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		productID, err := validators.ParseIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := catalog.FetchProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := productResponse{Product: product, Variations: []types.Variation{}}
		if len(product.VariationIDs) > 0 {
			variations, err := catalog.FetchVariations(r.Context(), productID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			resp.Variations = variations
		}
		responses.WriteSuccess(w, resp)
	}
}

// ProductResolve resolves a partial or complete attribute selection to a
// variation and the price, image and SKU the product page should show.
func ProductResolve(resolver VariationResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resolver == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "variation resolver unavailable"))
			return
		}

		productID, err := validators.ParseIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		chosen := make(map[string]string, len(payload.Attributes))
		for _, attr := range validators.SanitizeAttributes(payload.Attributes, maxAttributeLen) {
			if attr.Option == "" {
				continue
			}
			chosen[attr.Name] = attr.Option
		}

		resolution, err := resolver.Resolve(r.Context(), productID, chosen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resolution)
	}
}
