package reconcile

import (
	"context"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/stripe"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

type intentReader interface {
	RetrievePaymentIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error)
}

type orderReader interface {
	FetchOrder(ctx context.Context, id int64) (*types.Order, error)
}

// Resolution is an order recovered from a payment reference, with the intent
// it was recovered through.
type Resolution struct {
	Order  *types.Order          `json:"order"`
	Intent *stripe.PaymentIntent `json:"payment_intent"`
}

// Service maps Stripe payment references back to WooCommerce orders. The
// order_id metadata written at intent creation is the only link between them.
type Service struct {
	intents intentReader
	orders  orderReader
	logg    *logger.Logger
}

// NewService wires the reconciliation service.
func NewService(intents intentReader, orders orderReader, logg *logger.Logger) (*Service, error) {
	if intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment processor required")
	}
	if orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order gateway required")
	}
	return &Service{intents: intents, orders: orders, logg: logg}, nil
}

// ResolveOrderForPayment looks up the intent, reads its order_id metadata and
// fetches that order. A missing intent, missing or malformed metadata, or a
// missing order all fail with NOT_FOUND.
func (s *Service) ResolveOrderForPayment(ctx context.Context, paymentReference string) (*Resolution, error) {
	ref := strings.TrimSpace(paymentReference)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}

	intent, err := s.intents.RetrievePaymentIntent(ctx, ref)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}

	orderID, ok := OrderIDFromMetadata(intent.Metadata)
	if !ok {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithPaymentIntent(ctx, intent.ID), "reconcile.order_metadata_missing")
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment has no linked order")
	}

	order, err := s.orders.FetchOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Resolution{Order: order, Intent: intent}, nil
}

// OrderIDFromMetadata parses the order_id intent metadata.
func OrderIDFromMetadata(metadata map[string]string) (int64, bool) {
	raw := strings.TrimSpace(metadata[stripe.MetadataOrderID])
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
