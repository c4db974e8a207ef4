package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/ravewear-storefront/internal/checkout"
	"github.com/angelmondragon/ravewear-storefront/internal/reconcile"
	"github.com/angelmondragon/ravewear-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

type attemptLedger interface {
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.CheckoutAttempt, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, stage checkout.Stage, reason string) error
}

type orderPayer interface {
	MarkOrderPaid(ctx context.Context, id int64, transactionID string) (*types.Order, error)
}

type ServiceParams struct {
	Attempts attemptLedger
	Orders   orderPayer
	Logger   *logger.Logger
}

// Service applies Stripe payment intent events to the attempt ledger and the
// WooCommerce order.
type Service struct {
	attempts attemptLedger
	orders   orderPayer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Attempts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "attempt repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order gateway required")
	}
	return &Service{
		attempts: params.Attempts,
		orders:   params.Orders,
		logg:     params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		return s.paymentSucceeded(s.logg.WithPaymentIntent(ctx, pi.ID), pi)
	case stripe.EventTypePaymentIntentPaymentFailed:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		return s.paymentFailed(s.logg.WithPaymentIntent(ctx, pi.ID), pi)
	default:
		return nil
	}
}

func (s *Service) paymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) error {
	attempt, err := s.attempts.FindByPaymentIntent(ctx, pi.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout attempt")
	}
	if attempt != nil {
		if _, err := s.attempts.MarkSucceeded(ctx, attempt.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark attempt succeeded")
		}
	}

	orderID, ok := reconcile.OrderIDFromMetadata(pi.Metadata)
	if !ok && attempt != nil && attempt.OrderID != nil {
		orderID, ok = *attempt.OrderID, true
	}
	if !ok {
		s.logg.Warn(ctx, "stripe.webhook.order_unlinked")
		return nil
	}

	if _, err := s.orders.MarkOrderPaid(s.logg.WithOrderID(ctx, orderID), orderID, pi.ID); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(s.logg.WithOrderID(ctx, orderID), "stripe.webhook.order_missing")
			return nil
		}
		return err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID), "stripe.webhook.order_paid")
	return nil
}

func (s *Service) paymentFailed(ctx context.Context, pi *stripe.PaymentIntent) error {
	attempt, err := s.attempts.FindByPaymentIntent(ctx, pi.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout attempt")
	}
	if attempt == nil {
		return nil
	}
	reason := "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}
	if err := s.attempts.MarkFailed(ctx, attempt.ID, checkout.StagePaymentConfirming, reason); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark attempt failed")
	}
	return nil
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &pi, nil
}
