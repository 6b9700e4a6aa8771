package reservations

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
	"github.com/rmcandela/wholestock-backend/pkg/outbox"
)

type gormTxRunner struct {
	conn *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn.WithContext(ctx).Transaction(fn)
}

type captureOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (c *captureOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureOutbox) countByType(eventType enums.OutboxEventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, event := range c.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	svc    Service
	conn   *gorm.DB
	outbox *captureOutbox
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
	if err := conn.AutoMigrate(&models.InventoryItem{}, &models.Reservation{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}

	capture := &captureOutbox{}
	logg := logger.New(logger.Options{Output: io.Discard})
	svc, err := NewService(gormTxRunner{conn: conn}, NewRepository(conn), capture, logg, 30*time.Minute)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return &testEnv{svc: svc, conn: conn, outbox: capture}
}

func (e *testEnv) seedItem(t *testing.T, key string, total, reserved int) {
	t.Helper()
	item := models.InventoryItem{Key: key, SellerID: "seller-1", TotalQty: total, ReservedQty: reserved}
	if err := e.conn.Create(&item).Error; err != nil {
		t.Fatalf("failed to seed item %q: %v", key, err)
	}
}

func (e *testEnv) seedReservation(t *testing.T, orderID uuid.UUID, key string, qty int, status enums.ReservationStatus, expiresAt time.Time) uuid.UUID {
	t.Helper()
	reservation := models.Reservation{
		ID:        uuid.New(),
		OrderID:   orderID,
		ItemKey:   key,
		Qty:       qty,
		Status:    status,
		ExpiresAt: expiresAt,
	}
	if err := e.conn.Create(&reservation).Error; err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}
	return reservation.ID
}

func (e *testEnv) item(t *testing.T, key string) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	if err := e.conn.Where("key = ?", key).First(&item).Error; err != nil {
		t.Fatalf("failed to load item %q: %v", key, err)
	}
	return item
}

func (e *testEnv) activeHoldSum(t *testing.T, key string) int {
	t.Helper()
	var holds []models.Reservation
	if err := e.conn.Where("item_key = ? AND status = ?", key, enums.ReservationStatusActive).Find(&holds).Error; err != nil {
		t.Fatalf("failed to load active holds for %q: %v", key, err)
	}
	sum := 0
	for _, hold := range holds {
		sum += hold.Qty
	}
	return sum
}

func (e *testEnv) reservation(t *testing.T, id uuid.UUID) models.Reservation {
	t.Helper()
	var reservation models.Reservation
	if err := e.conn.Where("id = ?", id).First(&reservation).Error; err != nil {
		t.Fatalf("failed to load reservation %s: %v", id, err)
	}
	return reservation
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

func TestReserveBatch_MergesDuplicateKeys(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "hoodie:m:black", 100, 0)

	held, err := env.svc.ReserveBatch(context.Background(), uuid.New(), []ReserveRequest{
		{Key: "hoodie:m:black", Qty: 10},
		{Key: "hoodie:m:black", Qty: 5},
	}, 0)
	if err != nil {
		t.Fatalf("ReserveBatch failed: %v", err)
	}
	if len(held) != 1 {
		t.Fatalf("expected 1 merged reservation, got %d", len(held))
	}
	if held[0].Qty != 15 {
		t.Fatalf("expected merged qty 15, got %d", held[0].Qty)
	}
	if got := env.item(t, "hoodie:m:black").ReservedQty; got != 15 {
		t.Fatalf("expected reserved_qty 15, got %d", got)
	}
}

func TestReserveBatch_AllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "hoodie:m:black", 50, 0)
	env.seedItem(t, "hoodie:l:black", 3, 0)

	_, err := env.svc.ReserveBatch(context.Background(), uuid.New(), []ReserveRequest{
		{Key: "hoodie:m:black", Qty: 10},
		{Key: "hoodie:l:black", Qty: 5},
	}, 0)
	assertCode(t, err, pkgerrors.CodeConflict)

	var count int64
	if err := env.conn.Model(&models.Reservation{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no reservations after rollback, got %d", count)
	}
	if got := env.item(t, "hoodie:m:black").ReservedQty; got != 0 {
		t.Fatalf("expected reserved_qty 0 after rollback, got %d", got)
	}
}

func TestReserveBatch_ExactBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "tee:s:white", 10, 4)

	ctx := context.Background()
	if _, err := env.svc.ReserveBatch(ctx, uuid.New(), []ReserveRequest{{Key: "tee:s:white", Qty: 6}}, 0); err != nil {
		t.Fatalf("reserving exactly the available stock should succeed: %v", err)
	}
	_, err := env.svc.ReserveBatch(ctx, uuid.New(), []ReserveRequest{{Key: "tee:s:white", Qty: 1}}, 0)
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestReserveBatch_ConcurrentBoundaryNeverOversells(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "tee:s:white", 10, 0)

	const (
		workers = 25
		qty     = 3
	)
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.ReserveBatch(context.Background(), uuid.New(), []ReserveRequest{{Key: "tee:s:white", Qty: qty}}, 0)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assertCode(t, err, pkgerrors.CodeConflict)
	}
	// 10 units at 3 per attempt: exactly three holds fit, every other
	// attempt must lose.
	if successes != 3 {
		t.Fatalf("expected 3 winning reservations, got %d", successes)
	}

	item := env.item(t, "tee:s:white")
	if item.ReservedQty != successes*qty {
		t.Fatalf("reserved counter %d disagrees with %d winners of qty %d", item.ReservedQty, successes, qty)
	}
	if got := env.activeHoldSum(t, "tee:s:white"); got != item.ReservedQty {
		t.Fatalf("active holds sum %d, counter says %d", got, item.ReservedQty)
	}
	if item.ReservedQty > item.TotalQty {
		t.Fatalf("oversold: reserved %d of %d", item.ReservedQty, item.TotalQty)
	}
}

func TestReserveBatch_ConcurrentRandomizedQuantities(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "tee:s:white", 12, 0)

	const workers = 40
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	quantities := make([]int, workers)
	for i := range quantities {
		quantities[i] = 1 + rng.Intn(4)
	}

	type attempt struct {
		qty int
		err error
	}
	results := make(chan attempt, workers)
	var wg sync.WaitGroup
	for _, qty := range quantities {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			_, err := env.svc.ReserveBatch(context.Background(), uuid.New(), []ReserveRequest{{Key: "tee:s:white", Qty: qty}}, 0)
			results <- attempt{qty: qty, err: err}
		}(qty)
	}
	wg.Wait()
	close(results)

	wonQty := 0
	for a := range results {
		if a.err == nil {
			wonQty += a.qty
			continue
		}
		assertCode(t, a.err, pkgerrors.CodeConflict)
	}

	item := env.item(t, "tee:s:white")
	if item.ReservedQty != wonQty {
		t.Fatalf("reserved counter %d disagrees with granted quantity %d", item.ReservedQty, wonQty)
	}
	if got := env.activeHoldSum(t, "tee:s:white"); got != item.ReservedQty {
		t.Fatalf("active holds sum %d, counter says %d", got, item.ReservedQty)
	}
	if item.ReservedQty > item.TotalQty {
		t.Fatalf("oversold: reserved %d of %d", item.ReservedQty, item.TotalQty)
	}
}

func TestReserveBatch_ReclaimsExpiredHolds(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "tee:s:white", 10, 10)
	staleID := env.seedReservation(t, uuid.New(), "tee:s:white", 10, enums.ReservationStatusActive, time.Now().Add(-time.Minute))

	held, err := env.svc.ReserveBatch(context.Background(), uuid.New(), []ReserveRequest{{Key: "tee:s:white", Qty: 10}}, 0)
	if err != nil {
		t.Fatalf("expected expired hold to be reclaimed inline: %v", err)
	}
	if len(held) != 1 || held[0].Qty != 10 {
		t.Fatalf("unexpected reservations: %+v", held)
	}
	if got := env.reservation(t, staleID).Status; got != enums.ReservationStatusReleased {
		t.Fatalf("expected stale hold released, got %s", got)
	}
	if got := env.item(t, "tee:s:white").ReservedQty; got != 10 {
		t.Fatalf("expected reserved_qty 10 after reclaim, got %d", got)
	}
}

func TestReserveBatch_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "tee:s:white", 10, 0)

	ctx := context.Background()
	_, err := env.svc.ReserveBatch(ctx, uuid.New(), nil, 0)
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = env.svc.ReserveBatch(ctx, uuid.New(), []ReserveRequest{{Key: "tee:s:white", Qty: -1}}, 0)
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = env.svc.ReserveBatch(ctx, uuid.New(), []ReserveRequest{{Key: "ghost", Qty: 1}}, 0)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestConfirm_DecrementsStockOnceAndConflictsWithRelease(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "tee:s:white", 20, 0)

	ctx := context.Background()
	held, err := env.svc.ReserveBatch(ctx, uuid.New(), []ReserveRequest{{Key: "tee:s:white", Qty: 5}}, 0)
	if err != nil {
		t.Fatalf("ReserveBatch failed: %v", err)
	}
	id := held[0].ID

	if err := env.svc.Confirm(ctx, id); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if err := env.svc.Confirm(ctx, id); err != nil {
		t.Fatalf("second Confirm should be a no-op: %v", err)
	}

	item := env.item(t, "tee:s:white")
	if item.TotalQty != 15 || item.ReservedQty != 0 {
		t.Fatalf("expected total 15 reserved 0, got total %d reserved %d", item.TotalQty, item.ReservedQty)
	}

	err = env.svc.Release(ctx, id, "buyer_cancelled")
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestRelease_RestoresStockOnceAndConflictsWithConfirm(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "tee:s:white", 20, 0)

	ctx := context.Background()
	held, err := env.svc.ReserveBatch(ctx, uuid.New(), []ReserveRequest{{Key: "tee:s:white", Qty: 5}}, 0)
	if err != nil {
		t.Fatalf("ReserveBatch failed: %v", err)
	}
	id := held[0].ID

	if err := env.svc.Release(ctx, id, "buyer_cancelled"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := env.svc.Release(ctx, id, "buyer_cancelled"); err != nil {
		t.Fatalf("second Release should be a no-op: %v", err)
	}

	item := env.item(t, "tee:s:white")
	if item.TotalQty != 20 || item.ReservedQty != 0 {
		t.Fatalf("expected total 20 reserved 0, got total %d reserved %d", item.TotalQty, item.ReservedQty)
	}
	if got := env.outbox.countByType(enums.EventReservationReleased); got != 1 {
		t.Fatalf("expected exactly 1 released event, got %d", got)
	}

	err = env.svc.Confirm(ctx, id)
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestReleaseByOrder_ReleasesEveryActiveHold(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "hoodie:m:black", 30, 0)
	env.seedItem(t, "hoodie:l:black", 30, 0)

	ctx := context.Background()
	orderID := uuid.New()
	if _, err := env.svc.ReserveBatch(ctx, orderID, []ReserveRequest{
		{Key: "hoodie:m:black", Qty: 8},
		{Key: "hoodie:l:black", Qty: 4},
	}, 0); err != nil {
		t.Fatalf("ReserveBatch failed: %v", err)
	}

	if err := env.svc.ReleaseByOrder(ctx, orderID, "order_cancelled"); err != nil {
		t.Fatalf("ReleaseByOrder failed: %v", err)
	}
	if got := env.item(t, "hoodie:m:black").ReservedQty; got != 0 {
		t.Fatalf("expected reserved_qty 0, got %d", got)
	}
	if got := env.item(t, "hoodie:l:black").ReservedQty; got != 0 {
		t.Fatalf("expected reserved_qty 0, got %d", got)
	}
	if got := env.outbox.countByType(enums.EventReservationReleased); got != 2 {
		t.Fatalf("expected 2 released events, got %d", got)
	}

	// No active holds left; a second pass finds nothing to do.
	if err := env.svc.ReleaseByOrder(ctx, orderID, "order_cancelled"); err != nil {
		t.Fatalf("ReleaseByOrder on empty order failed: %v", err)
	}
}

func TestConfirmByOrder_ConfirmsEveryActiveHold(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "hoodie:m:black", 30, 0)
	env.seedItem(t, "hoodie:l:black", 30, 0)

	ctx := context.Background()
	orderID := uuid.New()
	if _, err := env.svc.ReserveBatch(ctx, orderID, []ReserveRequest{
		{Key: "hoodie:m:black", Qty: 8},
		{Key: "hoodie:l:black", Qty: 4},
	}, 0); err != nil {
		t.Fatalf("ReserveBatch failed: %v", err)
	}

	if err := env.svc.ConfirmByOrder(ctx, orderID); err != nil {
		t.Fatalf("ConfirmByOrder failed: %v", err)
	}
	medium := env.item(t, "hoodie:m:black")
	if medium.TotalQty != 22 || medium.ReservedQty != 0 {
		t.Fatalf("expected total 22 reserved 0, got total %d reserved %d", medium.TotalQty, medium.ReservedQty)
	}
	large := env.item(t, "hoodie:l:black")
	if large.TotalQty != 26 || large.ReservedQty != 0 {
		t.Fatalf("expected total 26 reserved 0, got total %d reserved %d", large.TotalQty, large.ReservedQty)
	}
}

func TestSweepExpired_ReleasesOnlyExpiredHolds(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "tee:s:white", 20, 9)
	now := time.Now()
	expiredID := env.seedReservation(t, uuid.New(), "tee:s:white", 6, enums.ReservationStatusActive, now.Add(-time.Hour))
	liveID := env.seedReservation(t, uuid.New(), "tee:s:white", 3, enums.ReservationStatusActive, now.Add(time.Hour))

	swept, err := env.svc.SweepExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept hold, got %d", swept)
	}
	if got := env.reservation(t, expiredID).Status; got != enums.ReservationStatusReleased {
		t.Fatalf("expected expired hold released, got %s", got)
	}
	if got := env.reservation(t, liveID).Status; got != enums.ReservationStatusActive {
		t.Fatalf("expected live hold untouched, got %s", got)
	}
	if got := env.item(t, "tee:s:white").ReservedQty; got != 3 {
		t.Fatalf("expected reserved_qty 3 after sweep, got %d", got)
	}
	if got := env.outbox.countByType(enums.EventReservationExpired); got != 1 {
		t.Fatalf("expected 1 expired event, got %d", got)
	}
}

func TestSweepExpired_ReportsCounterDrift(t *testing.T) {
	env := newTestEnv(t)
	// Counter says 7 but the only active hold is 5: after the sweep releases
	// it, 2 phantom units remain reserved with no hold backing them.
	env.seedItem(t, "tee:s:white", 20, 7)
	env.seedReservation(t, uuid.New(), "tee:s:white", 5, enums.ReservationStatusActive, time.Now().Add(-time.Minute))

	swept, err := env.svc.SweepExpired(context.Background(), time.Now())
	if swept != 1 {
		t.Fatalf("expected the expired hold to still be swept, got %d", swept)
	}
	assertCode(t, err, pkgerrors.CodeConsistency)

	// The drift is reported, never corrected.
	if got := env.item(t, "tee:s:white").ReservedQty; got != 2 {
		t.Fatalf("expected reserved_qty left at 2, got %d", got)
	}
}

func TestSweepExpired_StopsOnPersistentFailures(t *testing.T) {
	env := newTestEnv(t)

	// A full batch of holds pointing at a key with no inventory row: every
	// release fails, the same rows would come back from the next fetch, and
	// the sweep must give up rather than spin on them.
	expiry := time.Now().Add(-time.Hour)
	for i := 0; i < sweepBatchSize; i++ {
		env.seedReservation(t, uuid.New(), "ghost:key", 1, enums.ReservationStatusActive, expiry)
	}

	swept, err := env.svc.SweepExpired(context.Background(), time.Now())
	if swept != 0 {
		t.Fatalf("expected no holds swept, got %d", swept)
	}
	if err == nil {
		t.Fatal("expected the failed releases to be reported")
	}

	var remaining int64
	if err := env.conn.Model(&models.Reservation{}).Where("status = ?", enums.ReservationStatusActive).Count(&remaining).Error; err != nil {
		t.Fatalf("failed to count active holds: %v", err)
	}
	if remaining != sweepBatchSize {
		t.Fatalf("expected all %d holds left active, got %d", sweepBatchSize, remaining)
	}
}

func TestNewService_ValidatesDependencies(t *testing.T) {
	env := newTestEnv(t)
	logg := logger.New(logger.Options{Output: io.Discard})

	if _, err := NewService(nil, NewRepository(env.conn), env.outbox, logg, time.Minute); err == nil {
		t.Fatal("expected error for nil transaction runner")
	}
	if _, err := NewService(gormTxRunner{conn: env.conn}, nil, env.outbox, logg, time.Minute); err == nil {
		t.Fatal("expected error for nil repository")
	}
	if _, err := NewService(gormTxRunner{conn: env.conn}, NewRepository(env.conn), nil, logg, time.Minute); err == nil {
		t.Fatal("expected error for nil outbox publisher")
	}
	if _, err := NewService(gormTxRunner{conn: env.conn}, NewRepository(env.conn), env.outbox, nil, time.Minute); err == nil {
		t.Fatal("expected error for nil logger")
	}
	if _, err := NewService(gormTxRunner{conn: env.conn}, NewRepository(env.conn), env.outbox, logg, 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}
