package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/ravewear-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

type wooMeta struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type wooLineItem struct {
	ProductID   int64     `json:"product_id"`
	VariationID int64     `json:"variation_id,omitempty"`
	Quantity    int       `json:"quantity"`
	MetaData    []wooMeta `json:"meta_data,omitempty"`
}

type wooOrderRequest struct {
	Status             string             `json:"status"`
	Currency           string             `json:"currency,omitempty"`
	PaymentMethod      string             `json:"payment_method,omitempty"`
	PaymentMethodTitle string             `json:"payment_method_title,omitempty"`
	SetPaid            bool               `json:"set_paid"`
	Billing            types.OrderAddress `json:"billing"`
	Shipping           types.OrderAddress `json:"shipping"`
	LineItems          []wooLineItem      `json:"line_items"`
	MetaData           []wooMeta          `json:"meta_data,omitempty"`
}

type wooOrderUpdate struct {
	Status        string `json:"status,omitempty"`
	SetPaid       *bool  `json:"set_paid,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type wooOrder struct {
	ID            int64              `json:"id"`
	Status        string             `json:"status"`
	Currency      string             `json:"currency"`
	Total         string             `json:"total"`
	TransactionID string             `json:"transaction_id"`
	Billing       types.OrderAddress `json:"billing"`
	Shipping      types.OrderAddress `json:"shipping"`
	LineItems     []wooLineItem      `json:"line_items"`
	MetaData      []wooMeta          `json:"meta_data"`
}

// CreateOrder opens an unpaid order. The checkout attempt id rides along as order
// meta so the order can be traced back to the submission that produced it.
func (c *Client) CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	if len(req.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one line item")
	}
	status := req.Status
	if status == "" {
		status = enums.OrderStatusPending
	}

	body := wooOrderRequest{
		Status:             status.String(),
		Currency:           strings.ToUpper(req.Currency),
		PaymentMethod:      req.PaymentMethod,
		PaymentMethodTitle: req.PaymentMethodTitle,
		SetPaid:            false,
		Billing:            req.Billing,
		Shipping:           req.Shipping,
		LineItems:          make([]wooLineItem, 0, len(req.LineItems)),
	}
	for _, item := range req.LineItems {
		line := wooLineItem{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.VariationID != nil {
			line.VariationID = *item.VariationID
		}
		for _, attr := range item.Meta {
			line.MetaData = append(line.MetaData, wooMeta{Key: attr.Name, Value: attr.Option})
		}
		body.LineItems = append(body.LineItems, line)
	}
	if req.CheckoutAttemptID != "" {
		body.MetaData = append(body.MetaData, wooMeta{Key: metaCheckoutAttemptID, Value: req.CheckoutAttemptID})
	}
	if req.CartSessionID != "" {
		body.MetaData = append(body.MetaData, wooMeta{Key: metaCartSessionID, Value: req.CartSessionID})
	}

	var raw wooOrder
	if _, err := c.do(ctx, http.MethodPost, "/orders", nil, body, "order", &raw); err != nil {
		return nil, err
	}
	return raw.toOrder()
}

// FetchOrder loads an order by id.
func (c *Client) FetchOrder(ctx context.Context, id int64) (*types.Order, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	var raw wooOrder
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/orders/%d", id), nil, nil, "order", &raw); err != nil {
		return nil, err
	}
	return raw.toOrder()
}

// UpdateOrderStatus moves an order to the given status.
func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status enums.OrderStatus) (*types.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", status))
	}
	return c.updateOrder(ctx, id, wooOrderUpdate{Status: status.String()})
}

// MarkOrderPaid flags the order as paid and records the payment intent as its transaction id.
func (c *Client) MarkOrderPaid(ctx context.Context, id int64, transactionID string) (*types.Order, error) {
	paid := true
	return c.updateOrder(ctx, id, wooOrderUpdate{SetPaid: &paid, TransactionID: transactionID})
}

func (c *Client) updateOrder(ctx context.Context, id int64, update wooOrderUpdate) (*types.Order, error) {
	var raw wooOrder
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d", id), nil, update, "order", &raw); err != nil {
		return nil, err
	}
	return raw.toOrder()
}

func (o wooOrder) toOrder() (*types.Order, error) {
	total, err := parsePrice(o.Total)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("order %d has an invalid total", o.ID))
	}
	order := &types.Order{
		ID:            o.ID,
		Status:        enums.OrderStatus(o.Status),
		Currency:      strings.ToLower(o.Currency),
		Total:         total,
		TransactionID: o.TransactionID,
		Billing:       o.Billing,
		Shipping:      o.Shipping,
		LineItems:     make([]types.OrderLineItem, 0, len(o.LineItems)),
	}
	for _, item := range o.LineItems {
		line := types.OrderLineItem{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.VariationID > 0 {
			variationID := item.VariationID
			line.VariationID = &variationID
		}
		for _, meta := range item.MetaData {
			if value, ok := meta.Value.(string); ok && !strings.HasPrefix(meta.Key, "_") {
				line.Meta = append(line.Meta, types.SelectedAttribute{Name: meta.Key, Option: value})
			}
		}
		order.LineItems = append(order.LineItems, line)
	}
	for _, meta := range o.MetaData {
		if meta.Key == metaCheckoutAttemptID {
			if value, ok := meta.Value.(string); ok {
				order.CheckoutAttemptID = value
			}
		}
	}
	return order, nil
}
