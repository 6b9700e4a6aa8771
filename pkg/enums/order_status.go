package enums

import "fmt"

// OrderStatus tracks the lifecycle of a wholesale order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusDepositPaid     OrderStatus = "deposit_paid"
	OrderStatusAwaitingBalance OrderStatus = "awaiting_balance"
	OrderStatusBalanceOverdue  OrderStatus = "balance_overdue"
	OrderStatusReadyToRelease  OrderStatus = "ready_to_release"
	OrderStatusInProduction    OrderStatus = "in_production"
	OrderStatusFulfilled       OrderStatus = "fulfilled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusDepositPaid,
	OrderStatusAwaitingBalance,
	OrderStatusBalanceOverdue,
	OrderStatusReadyToRelease,
	OrderStatusInProduction,
	OrderStatusFulfilled,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from this status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusCancelled
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
