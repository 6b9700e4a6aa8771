package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
)

// Repository defines persistence operations for inventory and reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockItem(ctx context.Context, key string) (*models.InventoryItem, error)
	UpdateItem(ctx context.Context, key string, updates map[string]any) error
	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	FindReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindActiveByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) error
	SumActiveQty(ctx context.Context, key string) (int, error)
}

// ReserveRequest asks for a hold of Qty units against one inventory key.
type ReserveRequest struct {
	Key string
	Qty int
}

// Service is the inventory reservation ledger surface. The Tx variants run
// inside a caller-owned transaction so order placement and cancellation can
// commit order rows and stock arithmetic atomically.
type Service interface {
	ReserveBatch(ctx context.Context, orderID uuid.UUID, requests []ReserveRequest, ttl time.Duration) ([]models.Reservation, error)
	ReserveBatchTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, requests []ReserveRequest, ttl time.Duration) ([]models.Reservation, error)
	Confirm(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID, reason string) error
	ConfirmByOrder(ctx context.Context, orderID uuid.UUID) error
	ConfirmByOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseByOrder(ctx context.Context, orderID uuid.UUID, reason string) error
	ReleaseByOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}
