package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/shopspring/decimal"
)

type wooImage struct {
	Src string `json:"src"`
}

type wooAttribute struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Variation bool     `json:"variation"`
	Options   []string `json:"options"`
}

type wooProduct struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	SKU        string         `json:"sku"`
	Type       string         `json:"type"`
	Price      string         `json:"price"`
	Images     []wooImage     `json:"images"`
	Attributes []wooAttribute `json:"attributes"`
	Variations []int64        `json:"variations"`
}

type wooVariationAttribute struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Option string `json:"option"`
}

type wooVariation struct {
	ID         int64                   `json:"id"`
	ParentID   int64                   `json:"parent_id"`
	SKU        string                  `json:"sku"`
	Price      string                  `json:"price"`
	Image      *wooImage               `json:"image"`
	Attributes []wooVariationAttribute `json:"attributes"`
}

// FetchProduct loads a product with its attribute schema.
func (c *Client) FetchProduct(ctx context.Context, id int64) (*types.Product, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	var raw wooProduct
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d", id), nil, nil, "product", &raw); err != nil {
		return nil, err
	}
	return raw.toProduct()
}

// FetchVariations loads every variation of a product in catalog order. A simple
// product yields an empty, non-nil slice.
func (c *Client) FetchVariations(ctx context.Context, productID int64) ([]types.Variation, error) {
	if productID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}

	out := make([]types.Variation, 0)
	path := fmt.Sprintf("/products/%d/variations", productID)
	for page := 1; page <= maxVariationPages; page++ {
		query := url.Values{}
		query.Set("per_page", strconv.Itoa(variationsPerPage))
		query.Set("page", strconv.Itoa(page))
		query.Set("orderby", "menu_order")
		query.Set("order", "asc")

		var batch []wooVariation
		header, err := c.do(ctx, http.MethodGet, path, query, nil, "product", &batch)
		if err != nil {
			return nil, err
		}
		for _, v := range batch {
			variation, err := v.toVariation(productID)
			if err != nil {
				return nil, err
			}
			out = append(out, variation)
		}
		if page >= totalPages(header) || len(batch) < variationsPerPage {
			break
		}
	}
	return out, nil
}

func (p wooProduct) toProduct() (*types.Product, error) {
	price, err := parsePrice(p.Price)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("product %d has an invalid price", p.ID))
	}
	attrs := make([]types.ProductAttribute, 0, len(p.Attributes))
	for _, a := range p.Attributes {
		attrs = append(attrs, types.ProductAttribute{
			Name:        a.Name,
			Options:     a.Options,
			IsVariation: a.Variation,
		})
	}
	product := &types.Product{
		ID:           p.ID,
		Name:         p.Name,
		SKU:          p.SKU,
		Type:         p.Type,
		Price:        price,
		Attributes:   attrs,
		VariationIDs: p.Variations,
	}
	if len(p.Images) > 0 {
		product.ImageRef = p.Images[0].Src
	}
	return product, nil
}

func (v wooVariation) toVariation(productID int64) (types.Variation, error) {
	price, err := parsePrice(v.Price)
	if err != nil {
		return types.Variation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("variation %d has an invalid price", v.ID))
	}
	attrs := make([]types.SelectedAttribute, 0, len(v.Attributes))
	for _, a := range v.Attributes {
		attrs = append(attrs, types.SelectedAttribute{Name: a.Name, Option: a.Option})
	}
	out := types.Variation{
		ID:         v.ID,
		ProductID:  productID,
		SKU:        v.SKU,
		Price:      price,
		Attributes: attrs,
	}
	if v.Image != nil {
		out.ImageRef = v.Image.Src
	}
	return out, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
