package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductionEventRequest is the external production-completion event that
// triggers the deduction engine. The production subsystem owns transaction
// identity; re-delivery of a committed id is a stock no-op.
type ProductionEventRequest struct {
	TransactionID string          `json:"transaction_id" validate:"required"`
	ItemID        string          `json:"item_id" validate:"required,uuid"`
	Quantity      decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	ProducedAt    *time.Time      `json:"produced_at"`
	// Strategy overrides the configured resolver per event; empty uses the
	// server default.
	Strategy string `json:"strategy" validate:"omitempty,oneof=shallow deep"`
}

// DeductionItem is one item's net stock decrement within a committed event.
type DeductionItem struct {
	ItemID     uuid.UUID       `json:"item_id"`
	ItemCode   string          `json:"item_code,omitempty"`
	Deducted   decimal.Decimal `json:"deducted"`
	StockAfter decimal.Decimal `json:"stock_after"`
}

// DeductionResponse reports the outcome of one production event.
type DeductionResponse struct {
	TransactionID  string          `json:"transaction_id"`
	State          string          `json:"state"`
	ItemID         uuid.UUID       `json:"item_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	Strategy       string          `json:"strategy"`
	Replayed       bool            `json:"replayed"`
	TruncatedNodes int             `json:"truncated_nodes"`
	Deductions     []DeductionItem `json:"deductions"`
}

// DeductionLogRow is the API view of one immutable audit entry.
type DeductionLogRow struct {
	ID               uuid.UUID       `json:"id"`
	TransactionID    string          `json:"transaction_id"`
	ParentItemID     uuid.UUID       `json:"parent_item_id"`
	ChildItemID      uuid.UUID       `json:"child_item_id"`
	BOMLevel         int             `json:"bom_level"`
	QuantityRequired decimal.Decimal `json:"quantity_required"`
	ParentQuantity   decimal.Decimal `json:"parent_quantity"`
	DeductedQuantity decimal.Decimal `json:"deducted_quantity"`
	StockBefore      decimal.Decimal `json:"stock_before"`
	StockAfter       decimal.Decimal `json:"stock_after"`
	CreatedAt        time.Time       `json:"created_at"`
}
