package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/pkg/enums"
)

// Reservation is a hold against an inventory item. Active holds count toward
// the item's ReservedQty; released and confirmed holds do not.
type Reservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ItemKey   string                  `gorm:"column:item_key;not null;index"`
	Qty       int                     `gorm:"column:qty;not null"`
	Status    enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ExpiresAt time.Time               `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
