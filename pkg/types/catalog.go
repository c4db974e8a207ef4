package types

import (
	"github.com/angelmondragon/ravewear-storefront/pkg/enums"
	"github.com/shopspring/decimal"
)

// SelectedAttribute is one {name, option} pair, either chosen by a shopper or
// declared on a variation.
type SelectedAttribute struct {
	Name   string `json:"name" validate:"required"`
	Option string `json:"option"`
}

// ProductAttribute is one entry of a product's attribute schema.
type ProductAttribute struct {
	Name        string   `json:"name"`
	Options     []string `json:"options"`
	IsVariation bool     `json:"is_variation_attribute"`
}

// Product is the catalog view of a WooCommerce product.
type Product struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	SKU          string             `json:"sku"`
	Type         string             `json:"type"`
	Price        decimal.Decimal    `json:"price"`
	ImageRef     string             `json:"image_ref,omitempty"`
	Attributes   []ProductAttribute `json:"attributes"`
	VariationIDs []int64            `json:"variation_ids,omitempty"`
}

// VariationAttributeNames lists, in schema order, the attributes that select a variation.
func (p Product) VariationAttributeNames() []string {
	names := make([]string, 0, len(p.Attributes))
	for _, attr := range p.Attributes {
		if attr.IsVariation {
			names = append(names, attr.Name)
		}
	}
	return names
}

// Variation is one purchasable combination of a variable product.
type Variation struct {
	ID         int64               `json:"id"`
	ProductID  int64               `json:"product_id"`
	SKU        string              `json:"sku"`
	Price      decimal.Decimal     `json:"price"`
	ImageRef   string              `json:"image_ref,omitempty"`
	Attributes []SelectedAttribute `json:"attributes"`
}

// OrderAddress mirrors the WooCommerce billing/shipping block.
type OrderAddress struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Company   string `json:"company,omitempty" validate:"max=100"`
	Address1  string `json:"address_1" validate:"required,max=200"`
	Address2  string `json:"address_2,omitempty" validate:"max=200"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"max=100"`
	Postcode  string `json:"postcode" validate:"required,max=20"`
	Country   string `json:"country" validate:"required,len=2"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" validate:"max=40"`
}

// OrderLineItem is the projection of a cart line sent to the commerce backend.
type OrderLineItem struct {
	ProductID   int64               `json:"product_id"`
	VariationID *int64              `json:"variation_id,omitempty"`
	Quantity    int                 `json:"quantity"`
	Meta        []SelectedAttribute `json:"meta,omitempty"`
}

// OrderRequest is everything needed to open a not-yet-paid order.
type OrderRequest struct {
	Billing            OrderAddress      `json:"billing"`
	Shipping           OrderAddress      `json:"shipping"`
	LineItems          []OrderLineItem   `json:"line_items"`
	Status             enums.OrderStatus `json:"status"`
	Currency           string            `json:"currency"`
	PaymentMethod      string            `json:"payment_method"`
	PaymentMethodTitle string            `json:"payment_method_title"`
	CheckoutAttemptID  string            `json:"checkout_attempt_id"`
	CartSessionID      string            `json:"cart_session_id"`
}

// Order is the catalog view of a WooCommerce order.
type Order struct {
	ID                int64             `json:"id"`
	Status            enums.OrderStatus `json:"status"`
	Currency          string            `json:"currency"`
	Total             decimal.Decimal   `json:"total"`
	TransactionID     string            `json:"transaction_id,omitempty"`
	Billing           OrderAddress      `json:"billing"`
	Shipping          OrderAddress      `json:"shipping"`
	LineItems         []OrderLineItem   `json:"line_items"`
	CheckoutAttemptID string            `json:"checkout_attempt_id,omitempty"`
}
