package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item kinds. The catalog distinguishes raw materials, semi-finished
// intermediates, and finished goods; only the kind string is meaningful
// to the BOM core.
const (
	ItemKindRaw      = "raw"
	ItemKindSemi     = "semi"
	ItemKindFinished = "finished"
)

// Item is the catalog view of a manufacturing item. The item catalog owns
// every field here except CurrentStock, which the deduction engine is the
// only writer of. CurrentStock is signed: shortfalls drive it negative
// unless strict stock mode is enabled.
type Item struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Code           string          `gorm:"uniqueIndex;not null"`
	Name           string          `gorm:"index;not null"`
	Kind           string          `gorm:"not null;default:'raw'"` // "raw" | "semi" | "finished"
	CurrentStock   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0"`
	ScrapWeight    decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0"`
	ScrapUnitPrice decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0"`
	// Coil marks coil-stock material rows; Purchased marks externally
	// procured items. Both feed the cost summary counters.
	Coil      bool `gorm:"not null;default:false"`
	Purchased bool `gorm:"not null;default:false"`
	Active    bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
