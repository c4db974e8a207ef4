package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/ravewear-storefront/api/middleware"
	"github.com/angelmondragon/ravewear-storefront/api/responses"
	"github.com/angelmondragon/ravewear-storefront/api/validators"
	cartsvc "github.com/angelmondragon/ravewear-storefront/internal/cart"
	pkgauth "github.com/angelmondragon/ravewear-storefront/pkg/auth"
	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

const maxAttributeLen = 100

type cartSessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CartSessionStart issues a cart-session token. A still-valid token is
// re-minted for the same session so the shopper keeps their cart.
func CartSessionStart(cfg config.CartSessionConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := ""
		if existing := strings.TrimSpace(r.Header.Get(middleware.CartTokenHeader)); existing != "" {
			if claims, err := pkgauth.ParseCartToken(cfg, existing); err == nil {
				sessionID = claims.SessionID
			}
		}

		token, claims, err := pkgauth.MintCartToken(cfg, time.Now(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if sessionID != "" {
			status = http.StatusOK
		}
		w.Header().Set(middleware.CartTokenHeader, token)
		responses.WriteSuccessStatus(w, status, cartSessionResponse{
			Token:     token,
			SessionID: claims.SessionID,
			ExpiresAt: claims.ExpiresAt.Time,
		})
	}
}

type addLineRequest struct {
	ProductID   int64                     `json:"product_id" validate:"required,gt=0"`
	VariationID *int64                    `json:"variation_id,omitempty" validate:"omitempty,gt=0"`
	Quantity    int                       `json:"quantity" validate:"required,gt=0,max=999"`
	Attributes  []types.SelectedAttribute `json:"attributes,omitempty" validate:"omitempty,dive"`
}

type lineRefRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	VariationID *int64 `json:"variation_id,omitempty" validate:"omitempty,gt=0"`
}

func (r lineRefRequest) ref() cartsvc.LineRef {
	return cartsvc.LineRef{ProductID: r.ProductID, VariationID: r.VariationID}
}

type setQuantityRequest struct {
	lineRefRequest
	Quantity int `json:"quantity" validate:"min=0,max=999"`
}

type setAttributeRequest struct {
	lineRefRequest
	Name   string `json:"name" validate:"required,max=100"`
	Option string `json:"option" validate:"max=100"`
}

// CartFetch returns the session's cart.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, sessionID string) (*cartsvc.View, error) {
		return svc.Get(r.Context(), sessionID)
	})
}

// CartAddLine adds a product (or a variation of one) to the cart.
func CartAddLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, sessionID string) (*cartsvc.View, error) {
		var payload addLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.AddLine(r.Context(), sessionID, cartsvc.AddLineRequest{
			ProductID:   payload.ProductID,
			Quantity:    payload.Quantity,
			VariationID: payload.VariationID,
			Attributes:  validators.SanitizeAttributes(payload.Attributes, maxAttributeLen),
		})
	})
}

// CartSetQuantity sets a line's quantity. Zero removes the line.
func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, sessionID string) (*cartsvc.View, error) {
		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SetQuantity(r.Context(), sessionID, payload.ref(), payload.Quantity)
	})
}

func CartRemoveLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, sessionID string) (*cartsvc.View, error) {
		var payload lineRefRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.RemoveLine(r.Context(), sessionID, payload.ref())
	})
}

// CartSetLineAttribute changes one attribute of a line, re-resolving its variation.
func CartSetLineAttribute(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, sessionID string) (*cartsvc.View, error) {
		var payload setAttributeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		name := validators.SanitizeString(payload.Name, maxAttributeLen)
		option := validators.SanitizeString(payload.Option, maxAttributeLen)
		return svc.SetLineAttributes(r.Context(), sessionID, payload.ref(), name, option)
	})
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, sessionID string) (*cartsvc.View, error) {
		return svc.Clear(r.Context(), sessionID)
	})
}

func cartHandler(svc cartsvc.Service, logg *logger.Logger, op func(*http.Request, string) (*cartsvc.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		sessionID := middleware.CartSessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session missing"))
			return
		}

		view, err := op(r, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
