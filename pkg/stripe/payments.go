package stripe

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// Intent statuses the storefront reacts to.
const (
	StatusSucceeded             = string(stripe.PaymentIntentStatusSucceeded)
	StatusProcessing            = string(stripe.PaymentIntentStatusProcessing)
	StatusRequiresAction        = string(stripe.PaymentIntentStatusRequiresAction)
	StatusRequiresPaymentMethod = string(stripe.PaymentIntentStatusRequiresPaymentMethod)
	StatusCanceled              = string(stripe.PaymentIntentStatusCanceled)
)

// Intent metadata keys. MetadataOrderID links a payment back to its WooCommerce order.
const (
	MetadataOrderID           = "order_id"
	MetadataCheckoutAttemptID = "checkout_attempt_id"
	MetadataCartSessionID     = "cart_session_id"
)

// PaymentIntent is the storefront view of a Stripe payment intent.
type PaymentIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Status       string            `json:"status"`
	AmountMinor  int64             `json:"amount_minor"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RedirectURL  string            `json:"redirect_url,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
}

// Settled reports whether the shopper is done paying: funds captured or on their way.
func (p *PaymentIntent) Settled() bool {
	if p == nil {
		return false
	}
	return p.Status == StatusSucceeded || p.Status == StatusProcessing
}

// Cancellable reports whether Stripe still accepts a cancel for the intent.
func (p *PaymentIntent) Cancellable() bool {
	if p == nil {
		return false
	}
	switch p.Status {
	case StatusSucceeded, StatusProcessing, StatusCanceled:
		return false
	default:
		return true
	}
}

// PaymentMethodDetails carries what the shopper submitted to pay.
type PaymentMethodDetails struct {
	PaymentMethodID string
	ReturnURL       string
}

// intentAPI is the subset of the Stripe payment intent resource used here.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type paymentIntentResource struct{}

func (paymentIntentResource) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (paymentIntentResource) Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Confirm(id, params)
}

func (paymentIntentResource) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Get(id, params)
}

func (paymentIntentResource) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Cancel(id, params)
}

// Payments implements the payment processor contract over Stripe payment intents.
type Payments struct {
	api  intentAPI
	logg *logger.Logger
}

// NewPayments builds the processor on top of an initialized Stripe client.
func NewPayments(client *Client, logg *logger.Logger) (*Payments, error) {
	if client == nil || client.API() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &Payments{api: paymentIntentResource{}, logg: logg}, nil
}

// CreatePaymentIntent opens an intent for amountMinor in currency. The idempotency
// key makes a retried request return the intent created by the first one.
func (p *Payments) CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string, idempotencyKey string) (*PaymentIntent, error) {
	if amountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey + ":intent")
	}

	pi, err := p.api.New(params)
	if err != nil {
		return nil, mapError(err, "create payment intent")
	}
	return fromStripe(pi), nil
}

// ConfirmPayment submits the shopper's payment method against an existing intent.
func (p *Payments) ConfirmPayment(ctx context.Context, intentID string, details PaymentMethodDetails, idempotencyKey string) (*PaymentIntent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	if strings.TrimSpace(details.PaymentMethodID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(details.PaymentMethodID),
	}
	if details.ReturnURL != "" {
		params.ReturnURL = stripe.String(details.ReturnURL)
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey + ":confirm")
	}

	pi, err := p.api.Confirm(intentID, params)
	if err != nil {
		return nil, mapError(err, "confirm payment")
	}
	return fromStripe(pi), nil
}

// RetrievePaymentIntent looks an intent up by its id.
func (p *Payments) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.Get(intentID, params)
	if err != nil {
		return nil, mapError(err, "retrieve payment intent")
	}
	return fromStripe(pi), nil
}

// CancelPaymentIntent cancels an intent that was abandoned before payment.
func (p *Payments) CancelPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	pi, err := p.api.Cancel(intentID, params)
	if err != nil {
		return nil, mapError(err, "cancel payment intent")
	}
	if p.logg != nil {
		p.logg.Info(p.logg.WithPaymentIntent(ctx, intentID), "stripe.intent_cancelled")
	}
	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) *PaymentIntent {
	if pi == nil {
		return nil
	}
	out := &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		out.RedirectURL = pi.NextAction.RedirectToURL.URL
	}
	if pi.LastPaymentError != nil {
		out.LastError = pi.LastPaymentError.Msg
	}
	return out
}

// mapError converts Stripe API failures into typed errors. Card errors keep
// Stripe's shopper-facing message verbatim.
func mapError(err error, action string) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return pkgerrors.Wrap(pkgerrors.CodePaymentDeclined, err, stripeErr.Msg).
			WithDetails(map[string]any{
				"decline_code": string(stripeErr.DeclineCode),
				"code":         string(stripeErr.Code),
			})
	case stripeErr.Code == stripe.ErrorCodeResourceMissing:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment intent not found")
	case stripeErr.Code == stripe.ErrorCodePaymentIntentAuthenticationFailure:
		return pkgerrors.Wrap(pkgerrors.CodePaymentDeclined, err, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == 0 || stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action).
			WithDetails(map[string]any{"stripe_code": string(stripeErr.Code)})
	}
}
