package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmcandela/wholestock-backend/internal/ordering"
	"github.com/rmcandela/wholestock-backend/internal/pricing"
	"github.com/rmcandela/wholestock-backend/internal/reservations"
	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
	"github.com/rmcandela/wholestock-backend/pkg/outbox"
	"github.com/rmcandela/wholestock-backend/pkg/outbox/payloads"
	"github.com/rmcandela/wholestock-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryLedger is the slice of the reservation ledger order placement and
// cancellation need inside their own transaction.
type InventoryLedger interface {
	ReserveBatchTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, requests []reservations.ReserveRequest, ttl time.Duration) ([]models.Reservation, error)
	ConfirmByOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseByOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error
}

// BalanceTracker is the slice of the balance workflow the state machine
// drives on transitions.
type BalanceTracker interface {
	RequestTx(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder, dueAt time.Time) (*models.BalanceRequest, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time) error
	CancelForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// Service owns the order lifecycle. Every mutation loads the order under a
// row lock, resolves the transition table, and commits the guarded status
// flip together with its outbox events.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.WholesaleOrder, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.WholesaleOrder, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error)
	MarkDepositPaid(ctx context.Context, orderID uuid.UUID) error
	RequestBalance(ctx context.Context, orderID uuid.UUID) error
	MarkBalancePaid(ctx context.Context, orderID uuid.UUID) error
	MarkOverdue(ctx context.Context, orderID uuid.UUID) error
	StartProduction(ctx context.Context, orderID uuid.UUID) error
	MarkFulfilled(ctx context.Context, orderID uuid.UUID) error
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) error
}

// OrderLineInput is one requested line of a checkout.
type OrderLineInput struct {
	ItemKey        string
	Qty            int
	StockQty       int
	UnitPriceCents int
}

// PlaceOrderInput carries everything checkout needs to create an order.
type PlaceOrderInput struct {
	BuyerID  uuid.UUID
	SellerID uuid.UUID
	Currency string
	MOQ      int
	Deposit  *pricing.DepositPolicy
	Lines    []OrderLineInput
}

type service struct {
	repo           Repository
	tx             txRunner
	outbox         outboxPublisher
	inventory      InventoryLedger
	balance        BalanceTracker
	logg           *logger.Logger
	reservationTTL time.Duration
	balanceDueDays int
}

// NewService builds the order state machine with its collaborators.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, inventory InventoryLedger, balance BalanceTracker, logg *logger.Logger, reservationTTL time.Duration, balanceDueDays int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if balance == nil {
		return nil, fmt.Errorf("balance tracker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if reservationTTL <= 0 {
		return nil, fmt.Errorf("reservation ttl must be positive")
	}
	if balanceDueDays <= 0 {
		return nil, fmt.Errorf("balance due days must be positive")
	}
	return &service{
		repo:           repo,
		tx:             tx,
		outbox:         outboxSvc,
		inventory:      inventory,
		balance:        balance,
		logg:           logg,
		reservationTTL: reservationTTL,
		balanceDueDays: balanceDueDays,
	}, nil
}

// PlaceOrder validates quantities against the MOQ, prices every line, then
// creates the order, reserves and confirms its stock in a single
// transaction. Insufficient stock on any line rolls the whole order back.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.WholesaleOrder, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line required")
	}
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	selections := make([]ordering.VariantSelection, 0, len(input.Lines))
	for _, line := range input.Lines {
		selections = append(selections, ordering.VariantSelection{
			Key:      line.ItemKey,
			Qty:      line.Qty,
			StockQty: line.StockQty,
		})
	}
	if _, err := ordering.ValidateSelection(input.MOQ, selections); err != nil {
		return nil, err
	}

	order := &models.WholesaleOrder{
		ID:       uuid.New(),
		BuyerID:  input.BuyerID,
		SellerID: input.SellerID,
		Status:   enums.OrderStatusPending,
		Currency: currency,
	}
	if input.Deposit != nil && input.Deposit.Percentage > 0 {
		pct := input.Deposit.Percentage
		order.DepositPct = &pct
	}

	requests := make([]reservations.ReserveRequest, 0, len(input.Lines))
	for _, line := range input.Lines {
		split, err := pricing.Quote(line.UnitPriceCents, line.Qty, input.Deposit)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:                  uuid.New(),
			OrderID:             order.ID,
			ItemKey:             line.ItemKey,
			Qty:                 line.Qty,
			UnitPriceCents:      line.UnitPriceCents,
			DepositPerUnitCents: split.DepositPerUnitCents,
			LineTotalCents:      split.LineTotalCents,
			LineDepositCents:    split.DepositCents,
		})
		order.TotalCents += split.LineTotalCents
		order.DepositCents += split.DepositCents
		order.BalanceCents += split.BalanceCents
		requests = append(requests, reservations.ReserveRequest{Key: line.ItemKey, Qty: line.Qty})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if _, err := s.inventory.ReserveBatchTx(ctx, tx, order.ID, requests, s.reservationTTL); err != nil {
			return err
		}
		if err := s.inventory.ConfirmByOrderTx(ctx, tx, order.ID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateWholesaleOrder,
			AggregateID:   order.ID,
			Actor:         buyerActor(order.BuyerID),
			Data: payloads.OrderCreatedEvent{
				OrderID:      order.ID,
				BuyerID:      order.BuyerID,
				SellerID:     order.SellerID,
				TotalCents:   order.TotalCents,
				DepositCents: order.DepositCents,
				BalanceCents: order.BalanceCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, fmt.Sprintf("order placed: total %d deposit %d %s", order.TotalCents, order.DepositCents, order.Currency))
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.WholesaleOrder, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	return s.repo.ListBuyerOrders(ctx, buyerID, params, filters)
}

func (s *service) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	return s.repo.ListSellerOrders(ctx, sellerID, params, filters)
}

// MarkDepositPaid moves pending -> deposit_paid. A duplicate webhook for an
// order that already recorded its deposit succeeds without re-emitting.
func (s *service) MarkDepositPaid(ctx context.Context, orderID uuid.UUID) error {
	return s.transition(ctx, orderID, OpMarkDepositPaid, func(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder) (bool, map[string]any, error) {
		if order.DepositPaidAt != nil {
			return false, nil, nil
		}
		return true, map[string]any{"deposit_paid_at": time.Now()}, nil
	})
}

// RequestBalance moves deposit_paid -> awaiting_balance, stamps the due date
// and opens the balance request in the same transaction.
func (s *service) RequestBalance(ctx context.Context, orderID uuid.UUID) error {
	return s.transition(ctx, orderID, OpRequestBalance, func(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder) (bool, map[string]any, error) {
		dueAt := time.Now().AddDate(0, 0, s.balanceDueDays)
		if _, err := s.balance.RequestTx(ctx, tx, order, dueAt); err != nil {
			return false, nil, err
		}
		return true, map[string]any{"balance_due_at": dueAt}, nil
	})
}

// MarkBalancePaid moves awaiting_balance or balance_overdue to
// ready_to_release. Duplicate webhooks after the balance settled are no-ops.
func (s *service) MarkBalancePaid(ctx context.Context, orderID uuid.UUID) error {
	return s.transition(ctx, orderID, OpMarkBalancePaid, func(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder) (bool, map[string]any, error) {
		if order.BalancePaidAt != nil {
			return false, nil, nil
		}
		paidAt := time.Now()
		if err := s.balance.MarkPaidTx(ctx, tx, order.ID, paidAt); err != nil {
			return false, nil, err
		}
		return true, map[string]any{"balance_paid_at": paidAt}, nil
	})
}

// MarkOverdue moves awaiting_balance -> balance_overdue. The overdue event
// is one-shot per order even when the cron job races itself.
func (s *service) MarkOverdue(ctx context.Context, orderID uuid.UUID) error {
	return s.transitionWith(ctx, orderID, OpMarkOverdue, func(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder) (bool, map[string]any, error) {
		if !IsOverdue(*order, time.Now()) {
			return false, nil, invalidTransition(OpMarkOverdue, order.Status)
		}
		return true, nil, nil
	}, func(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder, from enums.OrderStatus) error {
		dueAt := time.Time{}
		if order.BalanceDueAt != nil {
			dueAt = *order.BalanceDueAt
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderOverdue,
			AggregateType: enums.AggregateWholesaleOrder,
			AggregateID:   order.ID,
			Data:          payloads.OrderOverdueEvent{OrderID: order.ID, DueAt: dueAt},
		})
	})
}

// StartProduction moves ready_to_release -> in_production and asks the
// document pipeline for a packing slip.
func (s *service) StartProduction(ctx context.Context, orderID uuid.UUID) error {
	return s.transitionWith(ctx, orderID, OpStartProduction, nil, s.requestPackingSlip)
}

// MarkFulfilled moves in_production -> fulfilled, the happy-path terminal
// state, and requests the final paperwork.
func (s *service) MarkFulfilled(ctx context.Context, orderID uuid.UUID) error {
	return s.transitionWith(ctx, orderID, OpMarkFulfilled, func(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder) (bool, map[string]any, error) {
		return true, map[string]any{"fulfilled_at": time.Now()}, nil
	}, s.requestPackingSlip)
}

func (s *service) requestPackingSlip(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder, from enums.OrderStatus) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDocumentRequested,
		AggregateType: enums.AggregateWholesaleOrder,
		AggregateID:   order.ID,
		Data: payloads.DocumentRequestedEvent{
			OrderID: order.ID,
			Type:    enums.DocumentTypePackingSlip,
		},
	})
}

// Cancel is valid from every non-terminal state and idempotent on an
// already-cancelled order. It releases any ACTIVE holds and closes the
// balance workflow in the same transaction.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == enums.OrderStatusCancelled {
			return nil
		}
		if _, err := NextStatus(OpCancel, order.Status); err != nil {
			return err
		}

		cancelledAt := time.Now()
		if err := repo.UpdateStatus(ctx, orderID, order.Status, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at":  cancelledAt,
			"cancel_reason": reason,
		}); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during cancellation")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}

		if err := s.inventory.ReleaseByOrderTx(ctx, tx, orderID, "order_cancelled"); err != nil {
			return err
		}
		if err := s.balance.CancelForOrderTx(ctx, tx, orderID); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateWholesaleOrder,
			AggregateID:   orderID,
			Data: payloads.OrderCancelledEvent{
				OrderID:     orderID,
				From:        order.Status,
				Reason:      reason,
				CancelledAt: cancelledAt,
			},
		}); err != nil {
			return err
		}
		return s.notifyStatusChange(ctx, tx, order, enums.OrderStatusCancelled)
	})
}

// transitionPrep inspects the locked order before the status flip. It may
// veto the flip (duplicate delivery no-ops), add column updates, or fail.
type transitionPrep func(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder) (bool, map[string]any, error)

// transitionHook runs after a successful flip, still inside the transaction.
type transitionHook func(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder, from enums.OrderStatus) error

func (s *service) transition(ctx context.Context, orderID uuid.UUID, op Operation, prep transitionPrep) error {
	return s.transitionWith(ctx, orderID, op, prep, nil)
}

func (s *service) transitionWith(ctx context.Context, orderID uuid.UUID, op Operation, prep transitionPrep, hook transitionHook) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		to, err := NextStatus(op, order.Status)
		if err != nil {
			// Duplicate payment webhooks arrive after the order moved on;
			// report success when the work is already recorded.
			if op == OpMarkDepositPaid && order.DepositPaidAt != nil {
				return nil
			}
			if op == OpMarkBalancePaid && order.BalancePaidAt != nil {
				return nil
			}
			return err
		}

		var updates map[string]any
		if prep != nil {
			proceed, extra, err := prep(ctx, tx, order)
			if err != nil {
				return err
			}
			if !proceed {
				return nil
			}
			updates = extra
		}

		from := order.Status
		if err := repo.UpdateStatus(ctx, orderID, from, to, updates); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order changed state during %s", op))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStateChanged,
			AggregateType: enums.AggregateWholesaleOrder,
			AggregateID:   orderID,
			Data: payloads.OrderStateChangedEvent{
				OrderID: orderID,
				From:    from,
				To:      to,
			},
		}); err != nil {
			return err
		}
		if err := s.notifyStatusChange(ctx, tx, order, to); err != nil {
			return err
		}

		if hook != nil {
			if err := hook(ctx, tx, order, from); err != nil {
				return err
			}
		}

		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Info(logCtx, fmt.Sprintf("order %s: %s -> %s", op, from, to))
		return nil
	})
}

// notifyStatusChange emits the buyer-facing notification on the same
// transaction; the sender consumes it from the outbox, never synchronously.
func (s *service) notifyStatusChange(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder, to enums.OrderStatus) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   order.ID,
		Data: payloads.NotificationRequestedEvent{
			OrderID:     order.ID,
			RecipientID: order.BuyerID,
			Kind:        enums.NotificationKindStatusChange,
		},
	})
}

func buyerActor(buyerID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: buyerID.String(), Role: "buyer"}
}
