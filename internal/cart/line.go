package cart

import (
	"strings"
	"time"

	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/shopspring/decimal"
)

// LineKey identifies a cart line: a product plus its resolved variation, if any.
// VariationID is zero when the line has no variation.
type LineKey struct {
	ProductID   int64
	VariationID int64
}

// KeyOf builds the composite key for productID and an optional variation.
func KeyOf(productID int64, variationID *int64) LineKey {
	key := LineKey{ProductID: productID}
	if variationID != nil {
		key.VariationID = *variationID
	}
	return key
}

// Line is one purchasable selection in the cart.
type Line struct {
	ProductID          int64                     `json:"product_id"`
	VariationID        *int64                    `json:"variation_id,omitempty"`
	Quantity           int                       `json:"quantity"`
	UnitPrice          decimal.Decimal           `json:"unit_price"`
	SelectedAttributes []types.SelectedAttribute `json:"selected_attributes"`
	// RequiredAttributes snapshots the product's variation attribute names at
	// add time so checkout eligibility can be decided from cart state alone.
	RequiredAttributes []string `json:"required_attributes,omitempty"`
	DisplayName        string   `json:"display_name"`
	ImageRef           string   `json:"image_ref,omitempty"`
	SKU                string   `json:"sku"`
}

func (l Line) Key() LineKey {
	return KeyOf(l.ProductID, l.VariationID)
}

// LineTotal is unit price times quantity.
func (l Line) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Chosen returns the line's selection as a name->option map.
func (l Line) Chosen() map[string]string {
	out := make(map[string]string, len(l.SelectedAttributes))
	for _, attr := range l.SelectedAttributes {
		out[attr.Name] = attr.Option
	}
	return out
}

// resolved reports whether every required attribute has a non-empty choice and
// a variation was found for the selection.
func (l Line) resolved() bool {
	if len(l.RequiredAttributes) == 0 {
		return true
	}
	chosen := l.Chosen()
	for _, name := range l.RequiredAttributes {
		if strings.TrimSpace(chosen[name]) == "" {
			return false
		}
	}
	return l.VariationID != nil
}

func (l Line) clone() Line {
	out := l
	if l.VariationID != nil {
		id := *l.VariationID
		out.VariationID = &id
	}
	out.SelectedAttributes = append([]types.SelectedAttribute(nil), l.SelectedAttributes...)
	out.RequiredAttributes = append([]string(nil), l.RequiredAttributes...)
	return out
}

// State is the cart aggregate. Subtotal and Total are derived from Lines on
// every read and are never persisted.
type State struct {
	Lines     []Line          `json:"lines"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Total     decimal.Decimal `json:"total"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsEmpty reports whether the cart holds no lines.
func (s State) IsEmpty() bool {
	return len(s.Lines) == 0
}

func (s State) clone() State {
	out := State{Version: s.Version, UpdatedAt: s.UpdatedAt, Lines: make([]Line, 0, len(s.Lines))}
	for _, l := range s.Lines {
		out.Lines = append(out.Lines, l.clone())
	}
	return out.withTotals()
}

func (s State) withTotals() State {
	subtotal := decimal.Zero
	for _, l := range s.Lines {
		subtotal = subtotal.Add(l.LineTotal())
	}
	s.Subtotal = subtotal
	s.Total = subtotal
	return s
}

func (s State) indexOf(key LineKey) int {
	for i, l := range s.Lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

// normalizeAttributes drops unnamed entries and keeps one entry per name: the
// first position, the last value.
func normalizeAttributes(attrs []types.SelectedAttribute) []types.SelectedAttribute {
	out := make([]types.SelectedAttribute, 0, len(attrs))
	pos := make(map[string]int, len(attrs))
	for _, attr := range attrs {
		name := strings.TrimSpace(attr.Name)
		if name == "" {
			continue
		}
		if i, ok := pos[name]; ok {
			out[i].Option = attr.Option
			continue
		}
		pos[name] = len(out)
		out = append(out, types.SelectedAttribute{Name: name, Option: attr.Option})
	}
	return out
}

// withAttribute sets or clears name in attrs, preserving order.
func withAttribute(attrs []types.SelectedAttribute, name, option string) []types.SelectedAttribute {
	out := make([]types.SelectedAttribute, 0, len(attrs)+1)
	found := false
	for _, attr := range attrs {
		if attr.Name != name {
			out = append(out, attr)
			continue
		}
		found = true
		if option != "" {
			out = append(out, types.SelectedAttribute{Name: name, Option: option})
		}
	}
	if !found && option != "" {
		out = append(out, types.SelectedAttribute{Name: name, Option: option})
	}
	return out
}
