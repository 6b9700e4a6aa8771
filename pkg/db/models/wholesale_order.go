package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/pkg/enums"
)

// WholesaleOrder is the aggregate root of the settlement lifecycle. Monetary
// amounts are integer cents; deposit + balance always equals total.
type WholesaleOrder struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID        uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID       uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	Status         enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Currency       string            `gorm:"column:currency;not null;default:'USD'"`
	DepositPct     *int              `gorm:"column:deposit_pct"`
	TotalCents     int               `gorm:"column:total_cents;not null"`
	DepositCents   int               `gorm:"column:deposit_cents;not null"`
	BalanceCents   int               `gorm:"column:balance_cents;not null"`
	BalanceDueAt   *time.Time        `gorm:"column:balance_due_at"`
	DepositPaidAt  *time.Time        `gorm:"column:deposit_paid_at"`
	BalancePaidAt  *time.Time        `gorm:"column:balance_paid_at"`
	FulfilledAt    *time.Time        `gorm:"column:fulfilled_at"`
	CancelledAt    *time.Time        `gorm:"column:cancelled_at"`
	CancelReason   *string           `gorm:"column:cancel_reason"`
	Items          []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	BalanceRequest *BalanceRequest   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
