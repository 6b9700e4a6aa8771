package enums

import "fmt"

// BalanceRequestStatus tracks the balance-due payment workflow for an order.
type BalanceRequestStatus string

const (
	BalanceRequestStatusNone      BalanceRequestStatus = "none"
	BalanceRequestStatusRequested BalanceRequestStatus = "requested"
	BalanceRequestStatusPaid      BalanceRequestStatus = "paid"
	BalanceRequestStatusFailed    BalanceRequestStatus = "failed"
	BalanceRequestStatusCancelled BalanceRequestStatus = "cancelled"
)

var validBalanceRequestStatuses = []BalanceRequestStatus{
	BalanceRequestStatusNone,
	BalanceRequestStatusRequested,
	BalanceRequestStatusPaid,
	BalanceRequestStatusFailed,
	BalanceRequestStatusCancelled,
}

// String implements fmt.Stringer.
func (b BalanceRequestStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BalanceRequestStatus.
func (b BalanceRequestStatus) IsValid() bool {
	for _, candidate := range validBalanceRequestStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBalanceRequestStatus converts raw input into a BalanceRequestStatus.
func ParseBalanceRequestStatus(value string) (BalanceRequestStatus, error) {
	for _, candidate := range validBalanceRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid balance request status %q", value)
}
