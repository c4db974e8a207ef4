package checkout

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/ravewear-storefront/internal/cart"
	"github.com/angelmondragon/ravewear-storefront/internal/reconcile"
	"github.com/angelmondragon/ravewear-storefront/pkg/db/models"
	"github.com/angelmondragon/ravewear-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/metrics"
	pkgredis "github.com/angelmondragon/ravewear-storefront/pkg/redis"
	"github.com/angelmondragon/ravewear-storefront/pkg/stripe"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	lockScope          = "checkout"
	paymentMethodTitle = "Credit card (Stripe)"
	paymentMethodSlug  = "stripe"
)

type cartReader interface {
	Get(ctx context.Context, sessionID string) (*cart.View, error)
	Clear(ctx context.Context, sessionID string) (*cart.View, error)
}

type orderCreator interface {
	CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
}

type paymentProcessor interface {
	CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string, idempotencyKey string) (*stripe.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, intentID string, details stripe.PaymentMethodDetails, idempotencyKey string) (*stripe.PaymentIntent, error)
}

type paymentReconciler interface {
	ResolveOrderForPayment(ctx context.Context, paymentReference string) (*reconcile.Resolution, error)
}

type sessionLocker interface {
	Lock(ctx context.Context, scope, id string, ttl time.Duration) (pkgredis.ReleaseFunc, error)
}

// SubmitRequest is the shopper's checkout form.
type SubmitRequest struct {
	Billing         types.OrderAddress
	Shipping        *types.OrderAddress
	PaymentMethodID string
}

// Result is the checkout session after an orchestrator call. Order is set by
// Confirm when the payment was reconciled to an order. Amount is the charged
// total in major units.
type Result struct {
	Session
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Order  *types.Order     `json:"order,omitempty"`
}

func newResult(session *Session) *Result {
	res := &Result{Session: *session}
	if session.AmountMinor > 0 {
		amount := FromMinorUnits(session.AmountMinor, session.Currency)
		res.Amount = &amount
	}
	return res
}

// OrchestratorParams wires the orchestrator.
type OrchestratorParams struct {
	Carts         cartReader
	Orders        orderCreator
	Payments      paymentProcessor
	Reconciler    paymentReconciler
	Sessions      SessionStore
	Attempts      AttemptRepository
	Locker        sessionLocker
	Metrics       *metrics.CheckoutMetrics
	Logger        *logger.Logger
	Currency      string
	ReturnURL     string
	LockTTL       time.Duration
	// ActionTimeout bounds how long a session waits on a payment redirect
	// before a new submit may replace it.
	ActionTimeout time.Duration
}

// Orchestrator runs create order -> create payment intent -> confirm payment
// for a cart session. Nothing it creates upstream is rolled back on failure;
// abandoned orders are cleaned up by the orphan sweeper.
type Orchestrator struct {
	carts      cartReader
	orders     orderCreator
	payments   paymentProcessor
	reconciler paymentReconciler
	sessions   SessionStore
	attempts   AttemptRepository
	locker     sessionLocker
	metrics    *metrics.CheckoutMetrics
	logg       *logger.Logger
	currency   string
	returnURL  string
	lockTTL    time.Duration
	actionTTL  time.Duration
	now        func() time.Time
}

// NewOrchestrator validates dependencies and builds an orchestrator.
func NewOrchestrator(p OrchestratorParams) (*Orchestrator, error) {
	switch {
	case p.Carts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart service required")
	case p.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order gateway required")
	case p.Payments == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment processor required")
	case p.Reconciler == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	case p.Sessions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session store required")
	case p.Attempts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "attempt repository required")
	case p.Locker == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session locker required")
	}
	currency := strings.ToLower(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = "usd"
	}
	lockTTL := p.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	actionTTL := p.ActionTimeout
	if actionTTL <= 0 {
		actionTTL = 15 * time.Minute
	}
	return &Orchestrator{
		carts:      p.Carts,
		orders:     p.Orders,
		payments:   p.Payments,
		reconciler: p.Reconciler,
		sessions:   p.Sessions,
		attempts:   p.Attempts,
		locker:     p.Locker,
		metrics:    p.Metrics,
		logg:       p.Logger,
		currency:   currency,
		returnURL:  p.ReturnURL,
		lockTTL:    lockTTL,
		actionTTL:  actionTTL,
		now:        time.Now,
	}, nil
}

// Current returns the session's checkout state, idle when none is stored.
func (o *Orchestrator) Current(ctx context.Context, cartSessionID string) (*Session, error) {
	session, err := o.sessions.Load(ctx, cartSessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = NewSession(cartSessionID)
	}
	return session, nil
}

// Submit starts a checkout attempt. A submit while an attempt is running is
// refused with STATE_CONFLICT; a submit after a finished attempt starts over
// with a fresh idempotency token.
func (o *Orchestrator) Submit(ctx context.Context, cartSessionID string, req SubmitRequest) (*Result, error) {
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}

	release, err := o.locker.Lock(ctx, lockScope, cartSessionID, o.lockTTL)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "checkout already in progress")
		}
		return nil, err
	}
	defer o.release(ctx, release)

	session, err := o.Current(ctx, cartSessionID)
	if err != nil {
		return nil, err
	}
	if o.redirectAbandoned(session) {
		o.abandonRedirect(ctx, session)
	}
	if session.State.Stage.InFlight() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already in progress").
			WithDetails(map[string]any{"stage": session.State.Stage})
	}
	if session.State.Stage.IsTerminal() {
		if err := session.apply(Event{Kind: EventReset}); err != nil {
			return nil, err
		}
		session.restart()
	}

	session.Billing = req.Billing
	session.Shipping = req.Shipping

	view, err := o.carts.Get(ctx, cartSessionID)
	if err != nil {
		return nil, err
	}
	if !view.CheckoutEligible {
		if err := o.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is not ready for checkout").
			WithDetails(map[string]any{"reason": ineligibleReason(view)})
	}

	amountMinor, err := ToMinorUnits(view.Subtotal, o.currency)
	if err != nil {
		return nil, err
	}

	if err := session.apply(Event{Kind: EventSubmit}); err != nil {
		return nil, err
	}
	attemptID := uuid.New()
	session.AttemptID = attemptID.String()
	session.IdempotencyToken = uuid.NewString()
	session.AmountMinor = amountMinor
	session.Currency = o.currency
	ctx = o.withAttempt(ctx, session)

	if err := o.attempts.Create(ctx, &models.CheckoutAttempt{
		ID:             attemptID,
		CartSessionID:  cartSessionID,
		IdempotencyKey: session.IdempotencyToken,
		Stage:          session.State.Stage.String(),
		Status:         enums.CheckoutAttemptStatusInProgress,
		AmountMinor:    amountMinor,
		Currency:       o.currency,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record checkout attempt")
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	// OrderCreating -> OrderCreated
	started := o.now()
	order, err := o.orders.CreateOrder(ctx, types.OrderRequest{
		Billing:            session.Billing,
		Shipping:           shippingOrBilling(session),
		LineItems:          projectLines(view.Lines),
		Status:             enums.OrderStatusPending,
		Currency:           strings.ToUpper(o.currency),
		PaymentMethod:      paymentMethodSlug,
		PaymentMethodTitle: paymentMethodTitle,
		CheckoutAttemptID:  session.IdempotencyToken,
		CartSessionID:      cartSessionID,
	})
	if err != nil {
		return o.fail(ctx, session, err, started)
	}
	session.OrderID = order.ID
	ctx = o.logg.WithOrderID(ctx, order.ID)
	if err := o.advance(ctx, session, Event{Kind: EventOrderCreated}, started); err != nil {
		return o.fail(ctx, session, err, time.Time{})
	}

	// OrderCreated -> PaymentIntentCreating -> PaymentIntentCreated
	if err := o.advance(ctx, session, Event{Kind: EventRequestIntent}, time.Time{}); err != nil {
		return o.fail(ctx, session, err, time.Time{})
	}
	started = o.now()
	intent, err := o.payments.CreatePaymentIntent(ctx, amountMinor, o.currency, map[string]string{
		stripe.MetadataOrderID:           strconv.FormatInt(order.ID, 10),
		stripe.MetadataCheckoutAttemptID: session.AttemptID,
		stripe.MetadataCartSessionID:     cartSessionID,
	}, session.IdempotencyToken)
	if err != nil {
		return o.fail(ctx, session, err, started)
	}
	session.PaymentIntentID = intent.ID
	session.ClientSecret = intent.ClientSecret
	ctx = o.logg.WithPaymentIntent(ctx, intent.ID)
	if err := o.advance(ctx, session, Event{Kind: EventIntentCreated}, started); err != nil {
		return o.fail(ctx, session, err, time.Time{})
	}

	// PaymentIntentCreated -> PaymentConfirming -> Succeeded
	if err := o.advance(ctx, session, Event{Kind: EventConfirm}, time.Time{}); err != nil {
		return o.fail(ctx, session, err, time.Time{})
	}
	started = o.now()
	confirmed, err := o.payments.ConfirmPayment(ctx, intent.ID, stripe.PaymentMethodDetails{
		PaymentMethodID: req.PaymentMethodID,
		ReturnURL:       o.returnURL,
	}, session.IdempotencyToken)
	if err != nil {
		return o.fail(ctx, session, err, started)
	}
	return o.settle(ctx, session, confirmed, started)
}

// Confirm finishes a checkout that left the browser for a payment redirect. The
// payment reference is reconciled to its order; a session still waiting on that
// intent is completed or failed from the intent status.
func (o *Orchestrator) Confirm(ctx context.Context, cartSessionID, paymentReference string) (*Result, error) {
	resolution, err := o.reconciler.ResolveOrderForPayment(ctx, paymentReference)
	if err != nil {
		return nil, err
	}
	if owner := resolution.Intent.Metadata[stripe.MetadataCartSessionID]; owner != "" && owner != cartSessionID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}

	release, err := o.locker.Lock(ctx, lockScope, cartSessionID, o.lockTTL)
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, release)

	session, err := o.sessions.Load(ctx, cartSessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.PaymentIntentID != resolution.Intent.ID || session.State.Stage != StagePaymentConfirming {
		// Already finished by an earlier call or by another device.
		done := NewSession(cartSessionID)
		if resolution.Intent.Settled() {
			done.State = State{Stage: StageSucceeded}
		}
		done.OrderID = resolution.Order.ID
		done.PaymentIntentID = resolution.Intent.ID
		done.AmountMinor = resolution.Intent.AmountMinor
		done.Currency = resolution.Intent.Currency
		res := newResult(done)
		res.Order = resolution.Order
		return res, nil
	}

	ctx = o.withAttempt(ctx, session)
	res, err := o.settle(ctx, session, resolution.Intent, o.now())
	if res != nil {
		res.Order = resolution.Order
	}
	return res, err
}

// settle moves a PaymentConfirming session on from the processor's answer.
// Writes outlive the request so a disconnect cannot strand the session.
func (o *Orchestrator) settle(ctx context.Context, session *Session, intent *stripe.PaymentIntent, started time.Time) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	switch {
	case intent.Settled():
		if err := session.apply(Event{Kind: EventPaymentSucceeded}); err != nil {
			return nil, err
		}
		o.metrics.ObserveStage(StagePaymentConfirming.String(), metrics.OutcomeOK, o.now().Sub(started))
		o.markSucceeded(ctx, session)
		if _, err := o.carts.Clear(ctx, session.CartSessionID); err != nil {
			o.logg.Error(ctx, "checkout.cart_clear_failed", err)
		}
		if err := o.sessions.Delete(ctx, session.CartSessionID); err != nil {
			o.logg.Error(ctx, "checkout.session_delete_failed", err)
		}
		o.logg.Info(ctx, "checkout.succeeded")
		return newResult(session), nil

	case intent.Status == stripe.StatusRequiresAction:
		session.RedirectURL = intent.RedirectURL
		if intent.ClientSecret != "" {
			session.ClientSecret = intent.ClientSecret
		}
		o.metrics.ObserveStage(StagePaymentConfirming.String(), metrics.OutcomeAction, o.now().Sub(started))
		if err := o.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
		o.logg.Info(ctx, "checkout.requires_action")
		return newResult(session), nil

	default:
		reason := intent.LastError
		if reason == "" {
			reason = "payment was not completed"
		}
		return o.fail(ctx, session, pkgerrors.New(pkgerrors.CodePaymentDeclined, reason), started)
	}
}

// advance applies a forward event, writes the ledger and persists the session.
// A zero started skips the stage timing.
func (o *Orchestrator) advance(ctx context.Context, session *Session, ev Event, started time.Time) error {
	ctx = context.WithoutCancel(ctx)
	from := session.State.Stage
	if err := session.apply(ev); err != nil {
		return err
	}
	if !started.IsZero() {
		o.metrics.ObserveStage(from.String(), metrics.OutcomeOK, o.now().Sub(started))
	}
	o.recordProgress(ctx, session)
	o.logg.Info(o.logg.WithField(ctx, "stage", session.State.Stage.String()), "checkout.stage")
	return o.sessions.Save(ctx, session)
}

// fail moves the session to Failed at its current stage and returns cause to
// the caller. The form data stays on the session. The session and ledger
// writes ignore cancellation of ctx: a client that hung up mid-step must still
// be able to resubmit.
func (o *Orchestrator) fail(ctx context.Context, session *Session, cause error, started time.Time) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	if started.IsZero() {
		started = o.now()
	}
	stage := session.State.Stage
	reason := failureReason(cause)
	if err := session.apply(Fail(reason)); err != nil {
		return nil, err
	}

	outcome := metrics.OutcomeFailed
	if pkgerrors.IsCode(cause, pkgerrors.CodePaymentDeclined) {
		outcome = metrics.OutcomeDeclined
	}
	o.metrics.ObserveStage(stage.String(), outcome, o.now().Sub(started))

	if id, err := uuid.Parse(session.AttemptID); err == nil {
		if err := o.attempts.MarkFailed(ctx, id, stage, reason); err != nil {
			o.logg.Error(ctx, "checkout.ledger_write_failed", err)
		}
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		o.logg.Error(ctx, "checkout.session_save_failed", err)
	}
	o.logg.Warn(o.logg.WithFields(ctx, map[string]any{"failed_stage": stage.String(), "reason": reason}), "checkout.failed")

	typed := pkgerrors.As(cause)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeDependency, cause, reason)
	}
	details := map[string]any{"failed_stage": stage, "reason": reason}
	if session.OrderID > 0 {
		details["order_id"] = session.OrderID
	}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	return newResult(session), pkgerrors.Wrap(typed.Code(), cause, typed.Message()).WithDetails(details)
}

// redirectAbandoned reports whether the session has waited on a payment
// redirect for longer than the action timeout.
func (o *Orchestrator) redirectAbandoned(session *Session) bool {
	if session.State.Stage != StagePaymentConfirming || session.UpdatedAt.IsZero() {
		return false
	}
	return o.now().Sub(session.UpdatedAt) > o.actionTTL
}

// abandonRedirect fails a session whose shopper never came back from the
// payment redirect. A late success still reaches the order through the
// webhook.
func (o *Orchestrator) abandonRedirect(ctx context.Context, session *Session) {
	ctx = o.withAttempt(ctx, session)
	const reason = "payment authentication was not completed"
	if err := session.apply(Fail(reason)); err != nil {
		return
	}
	if id, err := uuid.Parse(session.AttemptID); err == nil {
		if err := o.attempts.MarkFailed(context.WithoutCancel(ctx), id, StagePaymentConfirming, reason); err != nil {
			o.logg.Error(ctx, "checkout.ledger_write_failed", err)
		}
	}
	o.logg.Warn(o.logg.WithField(ctx, "payment_intent_id", session.PaymentIntentID), "checkout.redirect_abandoned")
}

func (o *Orchestrator) recordProgress(ctx context.Context, session *Session) {
	id, err := uuid.Parse(session.AttemptID)
	if err != nil {
		return
	}
	if err := o.attempts.RecordProgress(ctx, id, AttemptProgress{
		Stage:           session.State.Stage,
		OrderID:         session.OrderID,
		PaymentIntentID: session.PaymentIntentID,
	}); err != nil {
		o.logg.Error(ctx, "checkout.ledger_write_failed", err)
	}
}

func (o *Orchestrator) markSucceeded(ctx context.Context, session *Session) {
	id, err := uuid.Parse(session.AttemptID)
	if err != nil {
		return
	}
	if _, err := o.attempts.MarkSucceeded(ctx, id); err != nil {
		o.logg.Error(ctx, "checkout.ledger_write_failed", err)
	}
}

func (o *Orchestrator) withAttempt(ctx context.Context, session *Session) context.Context {
	ctx = o.logg.WithCartSession(ctx, session.CartSessionID)
	return o.logg.WithCheckoutAttempt(ctx, session.AttemptID)
}

func (o *Orchestrator) release(ctx context.Context, release pkgredis.ReleaseFunc) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		o.logg.Warn(o.logg.WithField(ctx, "error", err.Error()), "checkout.lock.release_failed")
	}
}

func failureReason(err error) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return err.Error()
}

func ineligibleReason(view *cart.View) string {
	if view.IsEmpty() {
		return "cart is empty"
	}
	return "choose all options for every item"
}

func shippingOrBilling(session *Session) types.OrderAddress {
	if session.Shipping != nil {
		return *session.Shipping
	}
	return session.Billing
}

func projectLines(lines []cart.Line) []types.OrderLineItem {
	out := make([]types.OrderLineItem, 0, len(lines))
	for _, l := range lines {
		item := types.OrderLineItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Meta:      append([]types.SelectedAttribute(nil), l.SelectedAttributes...),
		}
		if l.VariationID != nil {
			id := *l.VariationID
			item.VariationID = &id
		}
		out = append(out, item)
	}
	return out
}
