package variation

import (
	"context"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

type catalogReader interface {
	FetchProduct(ctx context.Context, id int64) (*types.Product, error)
	FetchVariations(ctx context.Context, productID int64) ([]types.Variation, error)
}

// Resolution bundles a resolve result with the product it was computed against.
type Resolution struct {
	Product   *types.Product `json:"product"`
	Result    Result         `json:"result"`
	Effective Effective      `json:"effective"`
	Complete  bool           `json:"complete"`
}

// Resolver runs Resolve against live catalog data.
type Resolver struct {
	catalog catalogReader
}

// NewResolver builds a resolver over the (cached) catalog gateway.
func NewResolver(catalog catalogReader) (*Resolver, error) {
	if catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog gateway required")
	}
	return &Resolver{catalog: catalog}, nil
}

// Resolve loads productID and its variations and resolves chosen against them.
// Products without variation attributes skip the variations fetch.
func (r *Resolver) Resolve(ctx context.Context, productID int64, chosen map[string]string) (*Resolution, error) {
	if productID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	product, err := r.catalog.FetchProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	var variations []types.Variation
	if hasVariationAttributes(product.Attributes) {
		variations, err = r.catalog.FetchVariations(ctx, productID)
		if err != nil {
			return nil, err
		}
	}

	result := Resolve(product.Attributes, variations, chosen)
	return &Resolution{
		Product:   product,
		Result:    result,
		Effective: EffectiveFor(*product, result),
		Complete:  Complete(product.Attributes, chosen),
	}, nil
}
