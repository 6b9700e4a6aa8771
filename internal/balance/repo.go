package balance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
)

// Repository defines persistence operations for balance requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.BalanceRequest) error
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.BalanceRequest, error)
	FindByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.BalanceRequest, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a balance request repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.BalanceRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.BalanceRequest, error) {
	var request models.BalanceRequest
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindByOrderForUpdate locks the row so request/resend/paid races on the same
// order serialize.
func (r *repository) FindByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.BalanceRequest, error) {
	var request models.BalanceRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["updated_at"] = time.Now()
	return r.db.WithContext(ctx).
		Model(&models.BalanceRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}
