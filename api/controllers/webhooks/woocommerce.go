package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/ravewear-storefront/api/responses"
	woowebhook "github.com/angelmondragon/ravewear-storefront/internal/webhooks/woocommerce"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/metrics"
)

type WooCommerceWebhookService interface {
	HandleDelivery(ctx context.Context, d woowebhook.Delivery) error
}

// WooCommerceWebhook verifies X-WC-Webhook-Signature over the raw body before
// anything is parsed, then drops the cached catalog entries the delivery names.
func WooCommerceWebhook(svc WooCommerceWebhookService, secret string, m *metrics.CheckoutMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "woocommerce webhook not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(woowebhook.HeaderSignature)
		if signature == "" && woowebhook.IsPing(payload) {
			m.IncWebhook("woocommerce", resultIgnored)
			responses.WriteSuccess(w, nil)
			return
		}

		if err := woowebhook.Verify(payload, secret, signature); err != nil {
			m.IncWebhook("woocommerce", resultRejected)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		delivery := woowebhook.Delivery{
			Topic:     r.Header.Get(woowebhook.HeaderTopic),
			Resource:  r.Header.Get(woowebhook.HeaderResource),
			Event:     r.Header.Get(woowebhook.HeaderEvent),
			WebhookID: r.Header.Get(woowebhook.HeaderID),
			Payload:   payload,
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"wc_topic":       delivery.Topic,
				"wc_webhook_id":  delivery.WebhookID,
				"wc_delivery_id": r.Header.Get(woowebhook.HeaderDelivery),
			})
		}
		if err := svc.HandleDelivery(ctx, delivery); err != nil {
			m.IncWebhook("woocommerce", resultFailed)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		m.IncWebhook("woocommerce", resultProcessed)
		responses.WriteSuccess(w, nil)
	}
}
