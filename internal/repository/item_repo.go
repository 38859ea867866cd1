package repository

import (
	"context"

	"bomcore/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemRepository is the data access contract for catalog items. The BOM core
// reads item attributes and writes current_stock only; everything else belongs
// to the catalog collaborator.
type ItemRepository interface {
	Create(ctx context.Context, item *model.Item) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Item, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Item, error)

	// LockForUpdateTx reads one item under SELECT ... FOR UPDATE. Callers must
	// lock items in a consistent order (sorted by id) to avoid deadlocks.
	LockForUpdateTx(tx *gorm.DB, id uuid.UUID) (*model.Item, error)
	// SetStockTx writes the new absolute stock inside the caller's transaction.
	SetStockTx(tx *gorm.DB, id uuid.UUID, stock decimal.Decimal) error

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type itemRepo struct{ db *gorm.DB }

func NewItemRepository(db *gorm.DB) ItemRepository { return &itemRepo{db: db} }

func (r *itemRepo) Create(ctx context.Context, item *model.Item) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *itemRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	var item model.Item
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Item, error) {
	var items []model.Item
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

func (r *itemRepo) LockForUpdateTx(tx *gorm.DB, id uuid.UUID) (*model.Item, error) {
	var item model.Item
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepo) SetStockTx(tx *gorm.DB, id uuid.UUID, stock decimal.Decimal) error {
	return tx.Model(&model.Item{}).Where("id = ?", id).
		Update("current_stock", stock).Error
}

func (r *itemRepo) DB() *gorm.DB { return r.db }
