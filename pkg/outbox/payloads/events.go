package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/pkg/enums"
)

// OrderCreatedEvent signals a checkout that passed validation and pricing.
type OrderCreatedEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	TotalCents   int       `json:"total_cents"`
	DepositCents int       `json:"deposit_cents"`
	BalanceCents int       `json:"balance_cents"`
}

// OrderStateChangedEvent is emitted on every lifecycle transition.
type OrderStateChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// OrderCancelledEvent is emitted whenever an order reaches cancelled.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	From        enums.OrderStatus `json:"from"`
	Reason      string            `json:"reason,omitempty"`
	CancelledAt time.Time         `json:"cancelled_at"`
}

// OrderOverdueEvent reports a balance request past its due date.
type OrderOverdueEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	DueAt   time.Time `json:"due_at"`
}

// DocumentRequestedEvent asks the document pipeline to render paperwork.
type DocumentRequestedEvent struct {
	OrderID uuid.UUID          `json:"order_id"`
	Type    enums.DocumentType `json:"type"`
}

// NotificationRequestedEvent tells downstream systems to alert a party.
type NotificationRequestedEvent struct {
	OrderID     uuid.UUID              `json:"order_id"`
	RecipientID uuid.UUID              `json:"recipient_id"`
	Kind        enums.NotificationKind `json:"kind"`
}

// BalanceRequestedEvent is emitted when the seller requests the remainder.
type BalanceRequestedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	BalanceRequestID uuid.UUID `json:"balance_request_id"`
	AmountCents      int       `json:"amount_cents"`
	DueAt            time.Time `json:"due_at"`
}

// BalanceResentEvent is emitted on balance request reminders.
type BalanceResentEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	BalanceRequestID uuid.UUID `json:"balance_request_id"`
	ResendCount      int       `json:"resend_count"`
}

// ReservationReleasedEvent reports stock returned to the pool.
type ReservationReleasedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	OrderID       uuid.UUID `json:"order_id"`
	ItemKey       string    `json:"item_key"`
	Qty           int       `json:"qty"`
	Reason        string    `json:"reason,omitempty"`
}

// ReservationExpiredEvent reports a hold past its TTL swept by the cron job.
type ReservationExpiredEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	OrderID       uuid.UUID `json:"order_id"`
	ItemKey       string    `json:"item_key"`
	Qty           int       `json:"qty"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// WalletEntryEvent covers both credit and debit appends to the credit ledger.
type WalletEntryEvent struct {
	EntryID           uuid.UUID `json:"entry_id"`
	OwnerID           uuid.UUID `json:"owner_id"`
	Seq               int64     `json:"seq"`
	AmountCents       int64     `json:"amount_cents"`
	BalanceAfterCents int64     `json:"balance_after_cents"`
	Source            string    `json:"source"`
}
