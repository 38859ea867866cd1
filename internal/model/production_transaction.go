package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Production transaction states. A transaction moves
// received → resolving → applying → committed; "failed" is reachable from
// any non-terminal state.
const (
	TxStateReceived  = "received"
	TxStateResolving = "resolving"
	TxStateApplying  = "applying"
	TxStateCommitted = "committed"
	TxStateFailed    = "failed"
)

// ProductionTransaction records one production-completion event accepted by
// the deduction engine. The unique TransactionID doubles as the idempotency
// key: a committed transaction id is never applied against stock twice.
type ProductionTransaction struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TransactionID string          `gorm:"uniqueIndex;not null"`
	ItemID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Strategy      string          `gorm:"not null"` // "shallow" | "deep"
	State         string          `gorm:"not null;default:'received'"`
	// TruncatedNodes counts descendants dropped at the resolver depth bound,
	// so truncated rollups are visible to operators instead of silent.
	TruncatedNodes int `gorm:"not null;default:0"`
	FailReason     string
	ProducedAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName overrides GORM's default pluralization.
func (ProductionTransaction) TableName() string { return "production_transactions" }
