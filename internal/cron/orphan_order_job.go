package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/ravewear-storefront/pkg/db/models"
	"github.com/angelmondragon/ravewear-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/metrics"
	"github.com/angelmondragon/ravewear-storefront/pkg/stripe"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

const (
	orphanJobName       = "orphan-orders"
	defaultOrphanTTL    = 24 * time.Hour
	defaultOrphanBatch  = 100
	orphanResultAbandon = "abandoned"
	orphanResultSettled = "settled"
	orphanResultError   = "error"
)

type orphanAttemptStore interface {
	ListOrphanCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]models.CheckoutAttempt, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAbandoned(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type orderCanceller interface {
	UpdateOrderStatus(ctx context.Context, id int64, status enums.OrderStatus) (*types.Order, error)
}

type intentCanceller interface {
	RetrievePaymentIntent(ctx context.Context, reference string) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error)
}

// OrphanOrderJobParams configure the orphaned order sweeper.
type OrphanOrderJobParams struct {
	Logger    *logger.Logger
	Attempts  orphanAttemptStore
	Orders    orderCanceller
	Payments  intentCanceller
	Metrics   *metrics.CronJobMetrics
	OrphanTTL time.Duration
	BatchSize int
}

// NewOrphanOrderJob builds the job that cancels WooCommerce orders left behind
// by checkout attempts that never got paid.
func NewOrphanOrderJob(params OrphanOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Attempts == nil {
		return nil, fmt.Errorf("attempt store required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order gateway required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	ttl := params.OrphanTTL
	if ttl <= 0 {
		ttl = defaultOrphanTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOrphanBatch
	}
	return &orphanOrderJob{
		logg:     params.Logger,
		attempts: params.Attempts,
		orders:   params.Orders,
		payments: params.Payments,
		metrics:  params.Metrics,
		ttl:      ttl,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type orphanOrderJob struct {
	logg     *logger.Logger
	attempts orphanAttemptStore
	orders   orderCanceller
	payments intentCanceller
	metrics  *metrics.CronJobMetrics
	ttl      time.Duration
	batch    int
	now      func() time.Time
}

func (j *orphanOrderJob) Name() string { return orphanJobName }

func (j *orphanOrderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	candidates, err := j.attempts.ListOrphanCandidates(ctx, now.Add(-j.ttl), j.batch)
	if err != nil {
		return fmt.Errorf("list orphan candidates: %w", err)
	}

	var errs error
	counts := map[string]int{}
	for _, attempt := range candidates {
		result, err := j.sweep(ctx, attempt, now)
		counts[result]++
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("attempt %s: %w", attempt.ID, err))
		}
	}
	for result, n := range counts {
		j.metrics.AddProcessed(orphanJobName, result, n)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"abandoned":  counts[orphanResultAbandon],
		"settled":    counts[orphanResultSettled],
		"errors":     counts[orphanResultError],
	})
	j.logg.Info(logCtx, "orphan order sweep complete")
	return errs
}

func (j *orphanOrderJob) sweep(ctx context.Context, attempt models.CheckoutAttempt, now time.Time) (string, error) {
	ctx = j.logg.WithCheckoutAttempt(ctx, attempt.ID.String())
	if attempt.OrderID == nil {
		return orphanResultError, fmt.Errorf("attempt has no order")
	}
	orderID := *attempt.OrderID
	ctx = j.logg.WithOrderID(ctx, orderID)

	var intent *stripe.PaymentIntent
	if attempt.PaymentIntentID != nil && *attempt.PaymentIntentID != "" {
		var err error
		intent, err = j.payments.RetrievePaymentIntent(ctx, *attempt.PaymentIntentID)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return orphanResultError, fmt.Errorf("retrieve payment intent: %w", err)
		}
		if intent.Settled() {
			if _, err := j.attempts.MarkSucceeded(ctx, attempt.ID); err != nil {
				return orphanResultError, fmt.Errorf("mark attempt succeeded: %w", err)
			}
			j.logg.Warn(ctx, "orphan candidate was paid; ledger corrected")
			return orphanResultSettled, nil
		}
	}

	if _, err := j.orders.UpdateOrderStatus(ctx, orderID, enums.OrderStatusCancelled); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return orphanResultError, fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	if intent.Cancellable() {
		if _, err := j.payments.CancelPaymentIntent(ctx, intent.ID); err != nil {
			return orphanResultError, fmt.Errorf("cancel payment intent: %w", err)
		}
	}
	if _, err := j.attempts.MarkAbandoned(ctx, attempt.ID, now); err != nil {
		return orphanResultError, fmt.Errorf("mark attempt abandoned: %w", err)
	}
	j.logg.Info(ctx, "orphan order cancelled")
	return orphanResultAbandon, nil
}
