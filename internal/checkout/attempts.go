package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/ravewear-storefront/pkg/db"
	"github.com/angelmondragon/ravewear-storefront/pkg/db/models"
	"github.com/angelmondragon/ravewear-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttemptProgress is the set of references an attempt accumulates as it moves
// through the stages. Zero values are left untouched.
type AttemptProgress struct {
	Stage           Stage
	OrderID         int64
	PaymentIntentID string
	AmountMinor     int64
	Currency        string
}

// AttemptRepository is the checkout attempt ledger.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.CheckoutAttempt) error
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.CheckoutAttempt, error)
	RecordProgress(ctx context.Context, id uuid.UUID, progress AttemptProgress) error
	MarkFailed(ctx context.Context, id uuid.UUID, stage Stage, reason string) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAbandoned(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListOrphanCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]models.CheckoutAttempt, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository binds the ledger to db.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.CheckoutAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.Status == "" {
		attempt.Status = enums.CheckoutAttemptStatusInProgress
	}
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "checkout attempt already recorded")
		}
		return err
	}
	return nil
}

// FindByPaymentIntent returns nil without error when no attempt owns intentID.
func (r *attemptRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*models.CheckoutAttempt, error) {
	var attempt models.CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", intentID).
		Order("created_at DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) RecordProgress(ctx context.Context, id uuid.UUID, progress AttemptProgress) error {
	updates := map[string]any{"stage": progress.Stage.String()}
	if progress.OrderID > 0 {
		updates["order_id"] = progress.OrderID
	}
	if progress.PaymentIntentID != "" {
		updates["payment_intent_id"] = progress.PaymentIntentID
	}
	if progress.AmountMinor > 0 {
		updates["amount_minor"] = progress.AmountMinor
	}
	if progress.Currency != "" {
		updates["currency"] = progress.Currency
	}
	return r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkFailed records a failure unless the attempt already settled.
func (r *attemptRepository) MarkFailed(ctx context.Context, id uuid.UUID, stage Stage, reason string) error {
	failedStage := stage.String()
	return r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{}).
		Where("id = ? AND status IN ?", id, openStatuses()).
		Updates(map[string]any{
			"stage":          StageFailed.String(),
			"status":         enums.CheckoutAttemptStatusFailed,
			"failure_stage":  &failedStage,
			"failure_reason": &reason,
		}).Error
}

// MarkSucceeded moves an open attempt to succeeded. Failed attempts are open:
// a webhook may report success after the shopper saw a confirmation error.
func (r *attemptRepository) MarkSucceeded(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{}).
		Where("id = ? AND status IN ?", id, openStatuses()).
		Updates(map[string]any{
			"stage":  StageSucceeded.String(),
			"status": enums.CheckoutAttemptStatusSucceeded,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *attemptRepository) MarkAbandoned(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{}).
		Where("id = ? AND status IN ?", id, openStatuses()).
		Updates(map[string]any{
			"status":       enums.CheckoutAttemptStatusAbandoned,
			"abandoned_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

// ListOrphanCandidates returns open attempts that created an order before
// createdBefore, oldest first.
func (r *attemptRepository) ListOrphanCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]models.CheckoutAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	var attempts []models.CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("status IN ? AND order_id IS NOT NULL AND created_at < ?", openStatuses(), createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

func openStatuses() []string {
	return []string{
		enums.CheckoutAttemptStatusInProgress.String(),
		enums.CheckoutAttemptStatusFailed.String(),
	}
}
