package repository

import (
	"context"

	"bomcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeductionRepository persists production transactions and the append-only
// deduction audit trail. Log rows are insert-only; there are deliberately no
// update or delete methods for them.
type DeductionRepository interface {
	CreateTransaction(ctx context.Context, tx *model.ProductionTransaction) error
	FindTransaction(ctx context.Context, transactionID string) (*model.ProductionTransaction, error)
	UpdateTransactionState(ctx context.Context, id uuid.UUID, state string, fields map[string]interface{}) error
	// SetTransactionStateTx updates state inside the caller's transaction so
	// the commit flips the state atomically with the stock writes.
	SetTransactionStateTx(tx *gorm.DB, id uuid.UUID, state string, fields map[string]interface{}) error

	AppendLogsTx(tx *gorm.DB, logs []*model.DeductionLog) error
	ListLogs(ctx context.Context, transactionID string) ([]model.DeductionLog, error)

	DB() *gorm.DB
}

type deductionRepo struct{ db *gorm.DB }

func NewDeductionRepository(db *gorm.DB) DeductionRepository { return &deductionRepo{db: db} }

func (r *deductionRepo) CreateTransaction(ctx context.Context, tx *model.ProductionTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *deductionRepo) FindTransaction(ctx context.Context, transactionID string) (*model.ProductionTransaction, error) {
	var tx model.ProductionTransaction
	err := r.db.WithContext(ctx).First(&tx, "transaction_id = ?", transactionID).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *deductionRepo) UpdateTransactionState(ctx context.Context, id uuid.UUID, state string, fields map[string]interface{}) error {
	updates := map[string]interface{}{"state": state}
	for k, v := range fields {
		updates[k] = v
	}
	return r.db.WithContext(ctx).Model(&model.ProductionTransaction{}).
		Where("id = ?", id).Updates(updates).Error
}

func (r *deductionRepo) SetTransactionStateTx(tx *gorm.DB, id uuid.UUID, state string, fields map[string]interface{}) error {
	updates := map[string]interface{}{"state": state}
	for k, v := range fields {
		updates[k] = v
	}
	return tx.Model(&model.ProductionTransaction{}).
		Where("id = ?", id).Updates(updates).Error
}

func (r *deductionRepo) AppendLogsTx(tx *gorm.DB, logs []*model.DeductionLog) error {
	if len(logs) == 0 {
		return nil
	}
	return tx.Create(logs).Error
}

func (r *deductionRepo) ListLogs(ctx context.Context, transactionID string) ([]model.DeductionLog, error) {
	var logs []model.DeductionLog
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("bom_level ASC, created_at ASC").
		Find(&logs).Error
	return logs, err
}

func (r *deductionRepo) DB() *gorm.DB { return r.db }
