package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeductionLog is the immutable audit trail of the deduction engine. Exactly
// one row is written per (production transaction, contributing edge) pair;
// rows are never updated or deleted.
type DeductionLog struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TransactionID string    `gorm:"not null;index:idx_deduction_tx"`
	ParentItemID  uuid.UUID `gorm:"type:uuid;not null"`
	ChildItemID   uuid.UUID `gorm:"type:uuid;not null;index"`
	BOMLevel      int       `gorm:"not null"`
	// QuantityRequired is the per-unit edge quantity; ParentQuantity is the
	// cumulative units of the parent consumed for this production run.
	QuantityRequired decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ParentQuantity   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DeductedQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	StockBefore      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	StockAfter       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt        time.Time

	ChildItem *Item `gorm:"foreignKey:ChildItemID"`
}

// TableName overrides GORM's default pluralization.
func (DeductionLog) TableName() string { return "deduction_logs" }
