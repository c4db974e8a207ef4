package woowebhook

import (
	"context"
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
)

type invalidator interface {
	InvalidateProduct(ctx context.Context, productID int64) error
	InvalidateOrder(ctx context.Context, orderID int64) error
}

// Delivery is a verified WooCommerce webhook call.
type Delivery struct {
	Topic     string
	Resource  string
	Event     string
	WebhookID string
	Payload   []byte
}

// resourcePayload is the part of a product, variation or order body needed to
// locate cache entries.
type resourcePayload struct {
	ID       int64 `json:"id"`
	ParentID int64 `json:"parent_id"`
}

// Service drops cached catalog data named by a webhook delivery.
type Service struct {
	cache invalidator
	logg  *logger.Logger
}

func NewService(cache invalidator, logg *logger.Logger) (*Service, error) {
	if cache == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog cache required")
	}
	return &Service{cache: cache, logg: logg}, nil
}

// HandleDelivery invalidates the product (and its parent for variations) or the
// order the delivery refers to. Other resources are ignored.
func (s *Service) HandleDelivery(ctx context.Context, d Delivery) error {
	resource := resourceOf(d)
	if resource != "product" && resource != "order" {
		return nil
	}

	var body resourcePayload
	if err := json.Unmarshal(d.Payload, &body); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	if body.ID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook payload has no id")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"topic": d.Topic, "event": eventOf(d), "resource_id": body.ID})
	switch resource {
	case "product":
		if err := s.cache.InvalidateProduct(ctx, body.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate product")
		}
		if body.ParentID > 0 {
			if err := s.cache.InvalidateProduct(ctx, body.ParentID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate parent product")
			}
		}
	case "order":
		if err := s.cache.InvalidateOrder(ctx, body.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate order")
		}
	}
	s.logg.Info(ctx, "woocommerce.webhook.invalidated")
	return nil
}

// eventOf prefers the event header and falls back to the topic suffix
// ("product.deleted" -> "deleted").
func eventOf(d Delivery) string {
	event := strings.ToLower(strings.TrimSpace(d.Event))
	if event == "" {
		_, event, _ = strings.Cut(strings.ToLower(strings.TrimSpace(d.Topic)), ".")
	}
	return event
}

// resourceOf prefers the resource header and falls back to the topic prefix
// ("product.updated" -> "product").
func resourceOf(d Delivery) string {
	resource := strings.ToLower(strings.TrimSpace(d.Resource))
	if resource == "" {
		resource, _, _ = strings.Cut(strings.ToLower(strings.TrimSpace(d.Topic)), ".")
	}
	if resource == "product_variation" || resource == "variation" {
		return "product"
	}
	return resource
}
