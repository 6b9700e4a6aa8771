package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateWholesaleOrder OutboxAggregateType = "wholesale_order"
	AggregateReservation    OutboxAggregateType = "reservation"
	AggregateBalanceRequest OutboxAggregateType = "balance_request"
	AggregateWalletEntry    OutboxAggregateType = "wallet_entry"
	AggregateNotification   OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateWholesaleOrder,
	AggregateReservation,
	AggregateBalanceRequest,
	AggregateWalletEntry,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStateChanged     OutboxEventType = "order_state_changed"
	EventOrderCancelled        OutboxEventType = "order_cancelled"
	EventOrderOverdue          OutboxEventType = "order_overdue"
	EventDocumentRequested     OutboxEventType = "document_requested"
	EventNotificationRequested OutboxEventType = "notification_requested"
	EventBalanceRequested      OutboxEventType = "balance_requested"
	EventBalanceResent         OutboxEventType = "balance_resent"
	EventReservationReleased   OutboxEventType = "reservation_released"
	EventReservationExpired    OutboxEventType = "reservation_expired"
	EventWalletCredited        OutboxEventType = "wallet_credited"
	EventWalletDebited         OutboxEventType = "wallet_debited"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStateChanged,
	EventOrderCancelled,
	EventOrderOverdue,
	EventDocumentRequested,
	EventNotificationRequested,
	EventBalanceRequested,
	EventBalanceResent,
	EventReservationReleased,
	EventReservationExpired,
	EventWalletCredited,
	EventWalletDebited,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
