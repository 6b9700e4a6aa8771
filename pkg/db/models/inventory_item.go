package models

import "time"

// InventoryItem tracks total and reserved stock per variant key. Available
// stock is always derived as TotalQty - ReservedQty, never stored.
type InventoryItem struct {
	Key         string    `gorm:"column:key;primaryKey"`
	SellerID    string    `gorm:"column:seller_id;not null;index"`
	TotalQty    int       `gorm:"column:total_qty;not null;default:0"`
	ReservedQty int       `gorm:"column:reserved_qty;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableQty returns the stock not held by active reservations.
func (i InventoryItem) AvailableQty() int {
	return i.TotalQty - i.ReservedQty
}
