package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/ravewear-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/metrics"
)

const maxWebhookBody = 1 << 20

// Delivery results counted per webhook source.
const (
	resultProcessed = "processed"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultFailed    = "failed"
	resultIgnored   = "ignored"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type StripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type StripeSigner interface {
	SigningSecret() string
}

// StripeWebhook handles Stripe payment intent events. Each event id is
// processed once; a failed event is released so Stripe's retry runs it again.
func StripeWebhook(svc StripeWebhookService, client StripeSigner, guard StripeWebhookGuard, m *metrics.CheckoutMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			m.IncWebhook("stripe", resultRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			m.IncWebhook("stripe", resultRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid stripe signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			m.IncWebhook("stripe", resultDuplicate)
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			_ = guard.Delete(context.WithoutCancel(ctx), event.ID)
			m.IncWebhook("stripe", resultFailed)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		m.IncWebhook("stripe", resultProcessed)
		if logg != nil {
			logg.Info(ctx, "stripe.webhook.processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
