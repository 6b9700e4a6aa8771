package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is a priced line on a wholesale order. LineDepositCents is the
// per-unit deposit times quantity, so line deposits sum exactly to the order
// deposit.
type OrderItem struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ItemKey             string    `gorm:"column:item_key;not null"`
	Qty                 int       `gorm:"column:qty;not null"`
	UnitPriceCents      int       `gorm:"column:unit_price_cents;not null"`
	DepositPerUnitCents int       `gorm:"column:deposit_per_unit_cents;not null"`
	LineTotalCents      int       `gorm:"column:line_total_cents;not null"`
	LineDepositCents    int       `gorm:"column:line_deposit_cents;not null"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}
