package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BOMEdge is one parent-requires-child relationship with a per-unit quantity.
// Duplicate (parent, child, customer) tuples are allowed on purpose: consumers
// must sum them, never deduplicate. Self-references and cycles are likewise
// accepted at write time; the resolver's depth bound keeps traversal finite.
type BOMEdge struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ParentItemID uuid.UUID `gorm:"type:uuid;not null;index:idx_bom_parent"`
	ChildItemID  uuid.UUID `gorm:"type:uuid;not null;index:idx_bom_child"`
	// QuantityRequired is units of child consumed per one unit of parent. > 0.
	QuantityRequired decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	// LevelNo is the distance from the declared root, >= 1.
	LevelNo int `gorm:"not null;default:1"`
	// CustomerID scopes the edge to one customer's BOM variant; nil = shared.
	CustomerID *uuid.UUID `gorm:"type:uuid;index"`
	// ParentEdgeID links a row to the exact edge it hangs under, so tree
	// reconstruction does not have to fall back to level matching.
	ParentEdgeID *uuid.UUID `gorm:"type:uuid;index"`
	Active       bool       `gorm:"not null;default:true"`
	Remarks      string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Parent   *Item     `gorm:"foreignKey:ParentItemID"`
	Child    *Item     `gorm:"foreignKey:ChildItemID"`
	Customer *Customer `gorm:"foreignKey:CustomerID"`
}

// TableName overrides GORM's pluralization (b_o_m_edges).
func (BOMEdge) TableName() string { return "bom_edges" }
