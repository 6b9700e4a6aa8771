package orders

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rmcandela/wholestock-backend/internal/pricing"
	"github.com/rmcandela/wholestock-backend/internal/reservations"
	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
	"github.com/rmcandela/wholestock-backend/pkg/outbox"
	"github.com/rmcandela/wholestock-backend/pkg/pagination"
)

type gormTxRunner struct {
	conn *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn.WithContext(ctx).Transaction(fn)
}

type captureOutbox struct {
	events []outbox.DomainEvent
	seen   map[string]struct{}
}

func (c *captureOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *captureOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	key := fmt.Sprintf("%s/%s", event.EventType, event.AggregateID)
	if _, ok := c.seen[key]; ok {
		return nil
	}
	c.seen[key] = struct{}{}
	return c.Emit(ctx, tx, event)
}

func (c *captureOutbox) countByType(eventType enums.OutboxEventType) int {
	n := 0
	for _, event := range c.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

type stubBalanceTracker struct {
	requested []uuid.UUID
	paid      []uuid.UUID
	cancelled []uuid.UUID
}

func (s *stubBalanceTracker) RequestTx(_ context.Context, _ *gorm.DB, order *models.WholesaleOrder, dueAt time.Time) (*models.BalanceRequest, error) {
	s.requested = append(s.requested, order.ID)
	now := time.Now()
	return &models.BalanceRequest{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Status:          enums.BalanceRequestStatusRequested,
		AmountCents:     order.BalanceCents,
		DueAt:           dueAt,
		RequestedAt:     now,
		LastRequestedAt: now,
	}, nil
}

func (s *stubBalanceTracker) MarkPaidTx(_ context.Context, _ *gorm.DB, orderID uuid.UUID, _ time.Time) error {
	s.paid = append(s.paid, orderID)
	return nil
}

func (s *stubBalanceTracker) CancelForOrderTx(_ context.Context, _ *gorm.DB, orderID uuid.UUID) error {
	s.cancelled = append(s.cancelled, orderID)
	return nil
}

type testEnv struct {
	svc     Service
	conn    *gorm.DB
	outbox  *captureOutbox
	balance *stubBalanceTracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(
		&models.InventoryItem{},
		&models.Reservation{},
		&models.WholesaleOrder{},
		&models.OrderItem{},
		&models.BalanceRequest{},
	); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}

	capture := &captureOutbox{}
	logg := logger.New(logger.Options{Output: io.Discard})
	inventory, err := reservations.NewService(gormTxRunner{conn: conn}, reservations.NewRepository(conn), capture, logg, 30*time.Minute)
	if err != nil {
		t.Fatalf("failed to build reservation service: %v", err)
	}
	tracker := &stubBalanceTracker{}
	svc, err := NewService(NewRepository(conn), gormTxRunner{conn: conn}, capture, inventory, tracker, logg, 30*time.Minute, 14)
	if err != nil {
		t.Fatalf("failed to build order service: %v", err)
	}
	return &testEnv{svc: svc, conn: conn, outbox: capture, balance: tracker}
}

func (e *testEnv) seedItem(t *testing.T, key string, total int) {
	t.Helper()
	item := models.InventoryItem{Key: key, SellerID: "seller-1", TotalQty: total}
	if err := e.conn.Create(&item).Error; err != nil {
		t.Fatalf("failed to seed item %q: %v", key, err)
	}
}

func (e *testEnv) seedOrder(t *testing.T, status enums.OrderStatus, mutate func(*models.WholesaleOrder)) uuid.UUID {
	t.Helper()
	order := models.WholesaleOrder{
		ID:           uuid.New(),
		BuyerID:      uuid.New(),
		SellerID:     uuid.New(),
		Status:       status,
		Currency:     "USD",
		TotalCents:   100000,
		DepositCents: 30000,
		BalanceCents: 70000,
	}
	if mutate != nil {
		mutate(&order)
	}
	if err := e.conn.Create(&order).Error; err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	return order.ID
}

func (e *testEnv) orderStatus(t *testing.T, id uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.WholesaleOrder
	if err := e.conn.Where("id = ?", id).First(&order).Error; err != nil {
		t.Fatalf("failed to load order %s: %v", id, err)
	}
	return order.Status
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected %s error, got %v", code, err)
	}
	if typed.Code() != code {
		t.Fatalf("expected code %s, got %s (%v)", code, typed.Code(), err)
	}
}

func placeInput(lines ...OrderLineInput) PlaceOrderInput {
	pct := 30
	return PlaceOrderInput{
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		MOQ:      10,
		Deposit:  &pricing.DepositPolicy{Percentage: pct},
		Lines:    lines,
	}
}

func TestPlaceOrder_CreatesOrderAndConfirmsStock(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "hoodie:m:black", 100)
	env.seedItem(t, "hoodie:l:black", 100)

	order, err := env.svc.PlaceOrder(context.Background(), placeInput(
		OrderLineInput{ItemKey: "hoodie:m:black", Qty: 10, UnitPriceCents: 10000},
		OrderLineInput{ItemKey: "hoodie:l:black", Qty: 5, UnitPriceCents: 10000},
	))
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if order.TotalCents != 150000 || order.DepositCents != 45000 || order.BalanceCents != 105000 {
		t.Fatalf("unexpected split: total %d deposit %d balance %d", order.TotalCents, order.DepositCents, order.BalanceCents)
	}
	if got := env.orderStatus(t, order.ID); got != enums.OrderStatusPending {
		t.Fatalf("expected pending, got %s", got)
	}

	var item models.InventoryItem
	if err := env.conn.Where("key = ?", "hoodie:m:black").First(&item).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.TotalQty != 90 || item.ReservedQty != 0 {
		t.Fatalf("expected confirmed decrement to 90/0, got %d/%d", item.TotalQty, item.ReservedQty)
	}
	if got := env.outbox.countByType(enums.EventOrderCreated); got != 1 {
		t.Fatalf("expected 1 order_created event, got %d", got)
	}

	var itemCount int64
	if err := env.conn.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&itemCount).Error; err != nil {
		t.Fatalf("count items: %v", err)
	}
	if itemCount != 2 {
		t.Fatalf("expected 2 order items, got %d", itemCount)
	}
}

func TestPlaceOrder_InsufficientStockRollsBackEverything(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "hoodie:m:black", 100)
	env.seedItem(t, "hoodie:l:black", 3)

	_, err := env.svc.PlaceOrder(context.Background(), placeInput(
		OrderLineInput{ItemKey: "hoodie:m:black", Qty: 10, UnitPriceCents: 10000},
		OrderLineInput{ItemKey: "hoodie:l:black", Qty: 5, UnitPriceCents: 10000},
	))
	assertCode(t, err, pkgerrors.CodeConflict)

	var orderCount int64
	if err := env.conn.Model(&models.WholesaleOrder{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("expected order rollback, found %d orders", orderCount)
	}
	var item models.InventoryItem
	if err := env.conn.Where("key = ?", "hoodie:m:black").First(&item).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.TotalQty != 100 || item.ReservedQty != 0 {
		t.Fatalf("expected stock untouched, got %d/%d", item.TotalQty, item.ReservedQty)
	}
}

func TestPlaceOrder_RejectsBelowMOQ(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "hoodie:m:black", 100)

	_, err := env.svc.PlaceOrder(context.Background(), placeInput(
		OrderLineInput{ItemKey: "hoodie:m:black", Qty: 4, UnitPriceCents: 10000},
	))
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestLifecycle_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.seedOrder(t, enums.OrderStatusPending, nil)

	steps := []struct {
		op   func() error
		want enums.OrderStatus
	}{
		{func() error { return env.svc.MarkDepositPaid(ctx, id) }, enums.OrderStatusDepositPaid},
		{func() error { return env.svc.RequestBalance(ctx, id) }, enums.OrderStatusAwaitingBalance},
		{func() error { return env.svc.MarkBalancePaid(ctx, id) }, enums.OrderStatusReadyToRelease},
		{func() error { return env.svc.StartProduction(ctx, id) }, enums.OrderStatusInProduction},
		{func() error { return env.svc.MarkFulfilled(ctx, id) }, enums.OrderStatusFulfilled},
	}
	for _, step := range steps {
		if err := step.op(); err != nil {
			t.Fatalf("transition to %s failed: %v", step.want, err)
		}
		if got := env.orderStatus(t, id); got != step.want {
			t.Fatalf("expected %s, got %s", step.want, got)
		}
	}

	if got := env.outbox.countByType(enums.EventOrderStateChanged); got != 5 {
		t.Fatalf("expected 5 state change events, got %d", got)
	}
	// Packing slips on in_production and fulfilled.
	if got := env.outbox.countByType(enums.EventDocumentRequested); got != 2 {
		t.Fatalf("expected 2 document commands, got %d", got)
	}
	if len(env.balance.requested) != 1 || len(env.balance.paid) != 1 {
		t.Fatalf("expected balance tracker driven once each, got %d/%d", len(env.balance.requested), len(env.balance.paid))
	}
}

func TestLifecycle_OverduePath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	id := env.seedOrder(t, enums.OrderStatusAwaitingBalance, func(o *models.WholesaleOrder) {
		o.BalanceDueAt = &past
	})

	if err := env.svc.MarkOverdue(ctx, id); err != nil {
		t.Fatalf("MarkOverdue failed: %v", err)
	}
	if got := env.orderStatus(t, id); got != enums.OrderStatusBalanceOverdue {
		t.Fatalf("expected balance_overdue, got %s", got)
	}
	if got := env.outbox.countByType(enums.EventOrderOverdue); got != 1 {
		t.Fatalf("expected 1 overdue event, got %d", got)
	}

	// Paying an overdue balance still settles the order.
	if err := env.svc.MarkBalancePaid(ctx, id); err != nil {
		t.Fatalf("MarkBalancePaid from overdue failed: %v", err)
	}
	if got := env.orderStatus(t, id); got != enums.OrderStatusReadyToRelease {
		t.Fatalf("expected ready_to_release, got %s", got)
	}
}

func TestMarkOverdue_RefusesBeforeDueDate(t *testing.T) {
	env := newTestEnv(t)
	future := time.Now().Add(time.Hour)
	id := env.seedOrder(t, enums.OrderStatusAwaitingBalance, func(o *models.WholesaleOrder) {
		o.BalanceDueAt = &future
	})

	err := env.svc.MarkOverdue(context.Background(), id)
	assertCode(t, err, pkgerrors.CodeStateConflict)
	if got := env.orderStatus(t, id); got != enums.OrderStatusAwaitingBalance {
		t.Fatalf("expected order untouched, got %s", got)
	}
}

func TestDuplicateWebhooks_AreNoOps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.seedOrder(t, enums.OrderStatusPending, nil)

	if err := env.svc.MarkDepositPaid(ctx, id); err != nil {
		t.Fatalf("MarkDepositPaid failed: %v", err)
	}
	changed := env.outbox.countByType(enums.EventOrderStateChanged)
	if err := env.svc.MarkDepositPaid(ctx, id); err != nil {
		t.Fatalf("duplicate MarkDepositPaid should succeed: %v", err)
	}
	if got := env.outbox.countByType(enums.EventOrderStateChanged); got != changed {
		t.Fatalf("duplicate delivery re-emitted events: %d -> %d", changed, got)
	}

	if err := env.svc.RequestBalance(ctx, id); err != nil {
		t.Fatalf("RequestBalance failed: %v", err)
	}
	if err := env.svc.MarkBalancePaid(ctx, id); err != nil {
		t.Fatalf("MarkBalancePaid failed: %v", err)
	}
	if err := env.svc.MarkBalancePaid(ctx, id); err != nil {
		t.Fatalf("duplicate MarkBalancePaid should succeed: %v", err)
	}
	if len(env.balance.paid) != 1 {
		t.Fatalf("expected tracker driven once, got %d", len(env.balance.paid))
	}
}

func TestInvalidTransitions_LeaveOrderUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		from enums.OrderStatus
		op   func(uuid.UUID) error
	}{
		{enums.OrderStatusPending, func(id uuid.UUID) error { return env.svc.RequestBalance(ctx, id) }},
		{enums.OrderStatusPending, func(id uuid.UUID) error { return env.svc.MarkBalancePaid(ctx, id) }},
		{enums.OrderStatusPending, func(id uuid.UUID) error { return env.svc.StartProduction(ctx, id) }},
		{enums.OrderStatusPending, func(id uuid.UUID) error { return env.svc.MarkFulfilled(ctx, id) }},
		{enums.OrderStatusDepositPaid, func(id uuid.UUID) error { return env.svc.MarkOverdue(ctx, id) }},
		{enums.OrderStatusAwaitingBalance, func(id uuid.UUID) error { return env.svc.MarkDepositPaid(ctx, id) }},
		{enums.OrderStatusReadyToRelease, func(id uuid.UUID) error { return env.svc.MarkFulfilled(ctx, id) }},
		{enums.OrderStatusFulfilled, func(id uuid.UUID) error { return env.svc.StartProduction(ctx, id) }},
		{enums.OrderStatusCancelled, func(id uuid.UUID) error { return env.svc.MarkDepositPaid(ctx, id) }},
	}
	for _, tc := range cases {
		id := env.seedOrder(t, tc.from, nil)
		err := tc.op(id)
		assertCode(t, err, pkgerrors.CodeStateConflict)
		if got := env.orderStatus(t, id); got != tc.from {
			t.Fatalf("order mutated by rejected transition: %s -> %s", tc.from, got)
		}
	}
}

func TestNextStatus_Table(t *testing.T) {
	valid := map[Operation]map[enums.OrderStatus]enums.OrderStatus{
		OpMarkDepositPaid: {enums.OrderStatusPending: enums.OrderStatusDepositPaid},
		OpRequestBalance:  {enums.OrderStatusDepositPaid: enums.OrderStatusAwaitingBalance},
		OpMarkBalancePaid: {
			enums.OrderStatusAwaitingBalance: enums.OrderStatusReadyToRelease,
			enums.OrderStatusBalanceOverdue:  enums.OrderStatusReadyToRelease,
		},
		OpMarkOverdue:     {enums.OrderStatusAwaitingBalance: enums.OrderStatusBalanceOverdue},
		OpStartProduction: {enums.OrderStatusReadyToRelease: enums.OrderStatusInProduction},
		OpMarkFulfilled:   {enums.OrderStatusInProduction: enums.OrderStatusFulfilled},
	}
	states := []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusDepositPaid,
		enums.OrderStatusAwaitingBalance,
		enums.OrderStatusBalanceOverdue,
		enums.OrderStatusReadyToRelease,
		enums.OrderStatusInProduction,
		enums.OrderStatusFulfilled,
		enums.OrderStatusCancelled,
	}

	for op, table := range valid {
		for _, from := range states {
			to, err := NextStatus(op, from)
			if want, ok := table[from]; ok {
				if err != nil {
					t.Fatalf("%s from %s: unexpected error %v", op, from, err)
				}
				if to != want {
					t.Fatalf("%s from %s: expected %s, got %s", op, from, want, to)
				}
			} else if err == nil {
				t.Fatalf("%s from %s: expected state conflict, got %s", op, from, to)
			}
		}
	}

	for _, from := range states {
		to, err := NextStatus(OpCancel, from)
		if from.IsTerminal() {
			if err == nil {
				t.Fatalf("cancel from %s: expected state conflict", from)
			}
			continue
		}
		if err != nil {
			t.Fatalf("cancel from %s: unexpected error %v", from, err)
		}
		if to != enums.OrderStatusCancelled {
			t.Fatalf("cancel from %s: expected cancelled, got %s", from, to)
		}
	}
}

func TestCancel_ReleasesHoldsAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.seedOrder(t, enums.OrderStatusAwaitingBalance, nil)

	env.seedItem(t, "hoodie:m:black", 50)
	if err := env.conn.Model(&models.InventoryItem{}).Where("key = ?", "hoodie:m:black").Update("reserved_qty", 6).Error; err != nil {
		t.Fatalf("seed reserved: %v", err)
	}
	hold := models.Reservation{
		ID:        uuid.New(),
		OrderID:   id,
		ItemKey:   "hoodie:m:black",
		Qty:       6,
		Status:    enums.ReservationStatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := env.conn.Create(&hold).Error; err != nil {
		t.Fatalf("seed hold: %v", err)
	}

	if err := env.svc.Cancel(ctx, id, "buyer_changed_mind"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got := env.orderStatus(t, id); got != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
	var item models.InventoryItem
	if err := env.conn.Where("key = ?", "hoodie:m:black").First(&item).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.ReservedQty != 0 {
		t.Fatalf("expected holds released, reserved_qty %d", item.ReservedQty)
	}
	if len(env.balance.cancelled) != 1 {
		t.Fatalf("expected balance workflow cancelled once, got %d", len(env.balance.cancelled))
	}
	if got := env.outbox.countByType(enums.EventOrderCancelled); got != 1 {
		t.Fatalf("expected 1 cancelled event, got %d", got)
	}

	// Idempotent second cancel.
	if err := env.svc.Cancel(ctx, id, "buyer_changed_mind"); err != nil {
		t.Fatalf("second Cancel should be a no-op: %v", err)
	}
	if got := env.outbox.countByType(enums.EventOrderCancelled); got != 1 {
		t.Fatalf("second cancel re-emitted: %d events", got)
	}

	// Terminal fulfilled orders cannot be cancelled.
	done := env.seedOrder(t, enums.OrderStatusFulfilled, nil)
	assertCode(t, env.svc.Cancel(ctx, done, "too late"), pkgerrors.CodeStateConflict)
}

func TestIsOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	cases := []struct {
		name  string
		order models.WholesaleOrder
		want  bool
	}{
		{"awaiting past due", models.WholesaleOrder{Status: enums.OrderStatusAwaitingBalance, BalanceDueAt: &past}, true},
		{"awaiting not yet due", models.WholesaleOrder{Status: enums.OrderStatusAwaitingBalance, BalanceDueAt: &future}, false},
		{"awaiting without due date", models.WholesaleOrder{Status: enums.OrderStatusAwaitingBalance}, false},
		{"paid past due", models.WholesaleOrder{Status: enums.OrderStatusReadyToRelease, BalanceDueAt: &past}, false},
	}
	for _, tc := range cases {
		if got := IsOverdue(tc.order, now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestListBuyerOrders_PaginatesWithCursor(t *testing.T) {
	env := newTestEnv(t)
	buyerID := uuid.New()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		createdAt := base.Add(time.Duration(i) * time.Minute)
		order := models.WholesaleOrder{
			ID:         uuid.New(),
			BuyerID:    buyerID,
			SellerID:   uuid.New(),
			Status:     enums.OrderStatusPending,
			Currency:   "USD",
			TotalCents: 1000 * (i + 1),
			CreatedAt:  createdAt,
		}
		if err := env.conn.Create(&order).Error; err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}

	page, err := env.svc.ListBuyerOrders(context.Background(), buyerID, pagination.Params{Limit: 2}, OrderFilters{})
	if err != nil {
		t.Fatalf("ListBuyerOrders failed: %v", err)
	}
	if len(page.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(page.Orders))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next cursor")
	}

	rest, err := env.svc.ListBuyerOrders(context.Background(), buyerID, pagination.Params{Limit: 2, Cursor: page.NextCursor}, OrderFilters{})
	if err != nil {
		t.Fatalf("second page failed: %v", err)
	}
	if len(rest.Orders) != 1 {
		t.Fatalf("expected 1 remaining order, got %d", len(rest.Orders))
	}
	if rest.NextCursor != "" {
		t.Fatalf("expected empty cursor at end, got %q", rest.NextCursor)
	}
}
