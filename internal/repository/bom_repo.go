package repository

import (
	"context"

	"bomcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BOMRepository is the data access contract for the BOM edge graph.
type BOMRepository interface {
	Upsert(ctx context.Context, edge *model.BOMEdge) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.BOMEdge, error)
	Deactivate(ctx context.Context, id uuid.UUID) error

	// QueryChildren returns all active direct-child edges of a parent.
	// customerID nil returns edges across all customers; non-nil returns the
	// customer's scoped edges plus shared (customer-less) edges.
	QueryChildren(ctx context.Context, parentItemID uuid.UUID, customerID *uuid.UUID) ([]model.BOMEdge, error)

	// CreateBatchTx inserts the given edges inside the caller's transaction.
	CreateBatchTx(tx *gorm.DB, edges []*model.BOMEdge) error

	DB() *gorm.DB
}

type bomRepo struct{ db *gorm.DB }

func NewBOMRepository(db *gorm.DB) BOMRepository { return &bomRepo{db: db} }

func (r *bomRepo) Upsert(ctx context.Context, edge *model.BOMEdge) error {
	if edge.ID == uuid.Nil {
		return r.db.WithContext(ctx).Create(edge).Error
	}
	return r.db.WithContext(ctx).Save(edge).Error
}

func (r *bomRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.BOMEdge, error) {
	var edge model.BOMEdge
	err := r.db.WithContext(ctx).First(&edge, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

func (r *bomRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.BOMEdge{}).
		Where("id = ? AND active = true", id).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *bomRepo) QueryChildren(ctx context.Context, parentItemID uuid.UUID, customerID *uuid.UUID) ([]model.BOMEdge, error) {
	var edges []model.BOMEdge
	q := r.db.WithContext(ctx).
		Where("parent_item_id = ? AND active = true", parentItemID)
	if customerID != nil {
		q = q.Where("customer_id = ? OR customer_id IS NULL", *customerID)
	}
	err := q.Order("level_no ASC, created_at ASC").Find(&edges).Error
	return edges, err
}

func (r *bomRepo) CreateBatchTx(tx *gorm.DB, edges []*model.BOMEdge) error {
	if len(edges) == 0 {
		return nil
	}
	return tx.Create(edges).Error
}

func (r *bomRepo) DB() *gorm.DB { return r.db }
