package variation

import (
	"strings"

	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/shopspring/decimal"
)

// Outcome classifies a resolution attempt.
type Outcome string

const (
	// Matched means exactly one variation was selected (the first in catalog order).
	Matched Outcome = "matched"
	// NoMatch means the loaded variations do not cover the chosen options.
	NoMatch Outcome = "no_match"
	// Unresolved means variations were not loaded, so nothing can be concluded.
	Unresolved Outcome = "unresolved"
)

// Result is the output of Resolve.
type Result struct {
	Outcome   Outcome          `json:"outcome"`
	Variation *types.Variation `json:"variation,omitempty"`
	// CatalogMisconfigured is set when the product declares variation attributes
	// but has no variations at all, so no selection can ever match.
	CatalogMisconfigured bool `json:"catalog_misconfigured,omitempty"`
}

// Resolve finds the variation matching chosen. A variation matches when every
// {name, option} pair it declares is present in chosen with an identical value
// (case-sensitive, no normalization). Chosen attributes a variation does not
// declare are ignored. When several variations match, the first one in catalog
// order wins; duplicate combinations are treated as bad catalog data and this
// is a policy, not a guarantee.
//
// A nil variations slice means "not loaded" and yields Unresolved; an empty
// slice is a loaded, empty catalog.
func Resolve(schema []types.ProductAttribute, variations []types.Variation, chosen map[string]string) Result {
	if !hasVariationAttributes(schema) {
		return Result{Outcome: NoMatch}
	}
	if variations == nil {
		return Result{Outcome: Unresolved}
	}
	if len(variations) == 0 {
		return Result{Outcome: NoMatch, CatalogMisconfigured: true}
	}

	for i := range variations {
		if matches(variations[i], chosen) {
			v := variations[i]
			return Result{Outcome: Matched, Variation: &v}
		}
	}
	return Result{Outcome: NoMatch}
}

func matches(v types.Variation, chosen map[string]string) bool {
	for _, attr := range v.Attributes {
		option, ok := chosen[attr.Name]
		if !ok || option != attr.Option {
			return false
		}
	}
	return true
}

// Complete reports whether every variation attribute in schema has a non-empty choice.
func Complete(schema []types.ProductAttribute, chosen map[string]string) bool {
	for _, attr := range schema {
		if !attr.IsVariation {
			continue
		}
		if strings.TrimSpace(chosen[attr.Name]) == "" {
			return false
		}
	}
	return true
}

func hasVariationAttributes(schema []types.ProductAttribute) bool {
	for _, attr := range schema {
		if attr.IsVariation {
			return true
		}
	}
	return false
}

// Effective is the price/SKU/image a cart line should carry for a resolution.
type Effective struct {
	VariationID *int64          `json:"variation_id,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SKU         string          `json:"sku"`
	ImageRef    string          `json:"image_ref,omitempty"`
}

// EffectiveFor derives the line values: the variation's when matched, the base
// product's otherwise. Blank variation fields fall back to the product.
func EffectiveFor(product types.Product, r Result) Effective {
	out := Effective{
		UnitPrice: product.Price,
		SKU:       product.SKU,
		ImageRef:  product.ImageRef,
	}
	if r.Outcome != Matched || r.Variation == nil {
		return out
	}
	id := r.Variation.ID
	out.VariationID = &id
	out.UnitPrice = r.Variation.Price
	if r.Variation.SKU != "" {
		out.SKU = r.Variation.SKU
	}
	if r.Variation.ImageRef != "" {
		out.ImageRef = r.Variation.ImageRef
	}
	return out
}
