package wallet

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
)

// Repository defines persistence operations for wallet entries. Entries are
// immutable; there is deliberately no update method.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.WalletEntry) error
	FindLatest(ctx context.Context, ownerID uuid.UUID) (*models.WalletEntry, error)
	FindLatestForUpdate(ctx context.Context, ownerID uuid.UUID) (*models.WalletEntry, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.WalletEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a wallet repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.WalletEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindLatest(ctx context.Context, ownerID uuid.UUID) (*models.WalletEntry, error) {
	var entry models.WalletEntry
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("seq DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindLatestForUpdate locks the owner's newest entry so concurrent appends
// for the same owner serialize. First-ever appends have no row to lock; the
// unique (owner_id, seq) index catches that race instead.
func (r *repository) FindLatestForUpdate(ctx context.Context, ownerID uuid.UUID) (*models.WalletEntry, error) {
	var entry models.WalletEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerID).
		Order("seq DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.WalletEntry, error) {
	var entries []models.WalletEntry
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("seq ASC").
		Find(&entries).Error
	return entries, err
}
