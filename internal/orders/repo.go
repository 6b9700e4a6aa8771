package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	"github.com/rmcandela/wholestock-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.WholesaleOrder) (*models.WholesaleOrder, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.WholesaleOrder, error) {
	var order models.WholesaleOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("BalanceRequest").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderForUpdate locks the order row for the duration of the caller's
// transaction, serializing concurrent transitions per order id.
func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.WholesaleOrder, error) {
	var order models.WholesaleOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus flips the order status only when the row is still in the
// expected source state. Returns gorm.ErrRecordNotFound when the guard fails.
func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.WholesaleOrder{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	return r.listOrders(ctx, "buyer_id", buyerID, params, filters)
}

func (r *repository) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	return r.listOrders(ctx, "seller_id", sellerID, params, filters)
}

func (r *repository) listOrders(ctx context.Context, ownerColumn string, ownerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.WholesaleOrder{}).
		Preload("Items").
		Where(ownerColumn+" = ?", ownerID)

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, err
		}
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.WholesaleOrder
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	rows, hasMore := pagination.Trim(rows, params.Limit)
	list := &OrderList{Orders: make([]OrderSummary, 0, len(rows))}
	for _, row := range rows {
		list.Orders = append(list.Orders, OrderSummary{
			ID:           row.ID,
			BuyerID:      row.BuyerID,
			SellerID:     row.SellerID,
			Status:       row.Status,
			Currency:     row.Currency,
			TotalCents:   row.TotalCents,
			DepositCents: row.DepositCents,
			BalanceCents: row.BalanceCents,
			TotalItems:   len(row.Items),
			BalanceDueAt: row.BalanceDueAt,
			CreatedAt:    row.CreatedAt,
		})
	}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, nil
}

// FindAwaitingBalanceDue returns awaiting-balance orders whose due date has
// passed, oldest first. Used by the overdue cron job.
func (r *repository) FindAwaitingBalanceDue(ctx context.Context, cutoff time.Time, limit int) ([]models.WholesaleOrder, error) {
	var rows []models.WholesaleOrder
	query := r.db.WithContext(ctx).
		Where("status = ? AND balance_due_at IS NOT NULL AND balance_due_at < ?", enums.OrderStatusAwaitingBalance, cutoff).
		Order("balance_due_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}
