package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	"github.com/rmcandela/wholestock-backend/pkg/pagination"
)

// Repository defines persistence operations for wholesale orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.WholesaleOrder) (*models.WholesaleOrder, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.WholesaleOrder, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.WholesaleOrder, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) error
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error)
	FindAwaitingBalanceDue(ctx context.Context, cutoff time.Time, limit int) ([]models.WholesaleOrder, error)
}
