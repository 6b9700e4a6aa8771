package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/pkg/enums"
)

// BalanceRequest tracks the remainder-payment workflow for an order. At most
// one row exists per order.
type BalanceRequest struct {
	ID              uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;uniqueIndex:uq_balance_requests_order"`
	Status          enums.BalanceRequestStatus `gorm:"column:status;type:text;not null;default:'requested'"`
	AmountCents     int                        `gorm:"column:amount_cents;not null"`
	DueAt           time.Time                  `gorm:"column:due_at;not null"`
	RequestedAt     time.Time                  `gorm:"column:requested_at;not null"`
	LastRequestedAt time.Time                  `gorm:"column:last_requested_at;not null"`
	ResendCount     int                        `gorm:"column:resend_count;not null;default:0"`
	PaidAt          *time.Time                 `gorm:"column:paid_at"`
	FailureReason   *string                    `gorm:"column:failure_reason"`
	CreatedAt       time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
