package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/ravewear-storefront/api/middleware"
	"github.com/angelmondragon/ravewear-storefront/api/responses"
	"github.com/angelmondragon/ravewear-storefront/api/validators"
	checkoutsvc "github.com/angelmondragon/ravewear-storefront/internal/checkout"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

const maxPaymentReferenceLen = 255

// CheckoutService is the orchestrator surface the checkout endpoints drive.
type CheckoutService interface {
	Current(ctx context.Context, cartSessionID string) (*checkoutsvc.Session, error)
	Submit(ctx context.Context, cartSessionID string, req checkoutsvc.SubmitRequest) (*checkoutsvc.Result, error)
	Confirm(ctx context.Context, cartSessionID, paymentReference string) (*checkoutsvc.Result, error)
}

type checkoutRequest struct {
	Billing         types.OrderAddress  `json:"billing"`
	Shipping        *types.OrderAddress `json:"shipping,omitempty"`
	PaymentMethodID string              `json:"payment_method_id" validate:"required,max=255"`
}

// CheckoutSubmit runs one checkout attempt for the session's cart. A finished
// payment answers 201; a payment waiting on a customer action answers 202 with
// the redirect the browser must follow.
func CheckoutSubmit(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := checkoutSession(w, r, svc, logg)
		if !ok {
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), sessionID, checkoutsvc.SubmitRequest{
			Billing:         payload.Billing,
			Shipping:        payload.Shipping,
			PaymentMethodID: validators.SanitizeString(payload.PaymentMethodID, maxPaymentReferenceLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.State.Stage == checkoutsvc.StagePaymentConfirming {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// CheckoutFetch returns the session's current checkout state.
func CheckoutFetch(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := checkoutSession(w, r, svc, logg)
		if !ok {
			return
		}

		session, err := svc.Current(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// CheckoutConfirmation resolves the payment reference a redirect flow returns
// with to its order and finishes the checkout.
func CheckoutConfirmation(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := checkoutSession(w, r, svc, logg)
		if !ok {
			return
		}

		reference, err := validators.RequiredQuery(r, "payment_intent", maxPaymentReferenceLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), sessionID, reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func checkoutSession(w http.ResponseWriter, r *http.Request, svc CheckoutService, logg *logger.Logger) (string, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
		return "", false
	}
	sessionID := middleware.CartSessionIDFromContext(r.Context())
	if sessionID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session missing"))
		return "", false
	}
	return sessionID, true
}
