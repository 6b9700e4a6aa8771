package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/pkg/enums"
)

// OrderFilters describe the inputs supported by the order lists.
type OrderFilters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// OrderSummary exposes the aggregated fields returned in list responses.
type OrderSummary struct {
	ID           uuid.UUID         `json:"id"`
	BuyerID      uuid.UUID         `json:"buyer_id"`
	SellerID     uuid.UUID         `json:"seller_id"`
	Status       enums.OrderStatus `json:"status"`
	Currency     string            `json:"currency"`
	TotalCents   int               `json:"total_cents"`
	DepositCents int               `json:"deposit_cents"`
	BalanceCents int               `json:"balance_cents"`
	TotalItems   int               `json:"total_items"`
	BalanceDueAt *time.Time        `json:"balance_due_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
