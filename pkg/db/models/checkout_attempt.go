package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ravewear-storefront/pkg/enums"
)

// CheckoutAttempt records one checkout submission: which WooCommerce order and
// Stripe intent it created and where it stopped.
type CheckoutAttempt struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	CartSessionID   string                      `gorm:"column:cart_session_id;not null"`
	IdempotencyKey  string                      `gorm:"column:idempotency_key;not null;uniqueIndex"`
	Stage           string                      `gorm:"column:stage;not null"`
	Status          enums.CheckoutAttemptStatus `gorm:"column:status;type:checkout_attempt_status;not null;default:'in_progress'"`
	FailureStage    *string                     `gorm:"column:failure_stage"`
	FailureReason   *string                     `gorm:"column:failure_reason"`
	OrderID         *int64                      `gorm:"column:order_id"`
	PaymentIntentID *string                     `gorm:"column:payment_intent_id"`
	AmountMinor     int64                       `gorm:"column:amount_minor;not null;default:0"`
	Currency        string                      `gorm:"column:currency;not null"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
	AbandonedAt     *time.Time                  `gorm:"column:abandoned_at"`
}

func (CheckoutAttempt) TableName() string {
	return "checkout_attempts"
}
