package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UpsertEdgeRequest creates or replaces one BOM edge. Duplicate
// (parent, child, customer) tuples and self-references are accepted;
// consumers sum duplicates.
type UpsertEdgeRequest struct {
	ID               *string         `json:"id" validate:"omitempty,uuid"`
	ParentItemID     string          `json:"parent_item_id" validate:"required,uuid"`
	ChildItemID      string          `json:"child_item_id" validate:"required,uuid"`
	QuantityRequired decimal.Decimal `json:"quantity_required" validate:"required,gt=0"`
	LevelNo          int             `json:"level_no" validate:"required,min=1"`
	CustomerID       *string         `json:"customer_id" validate:"omitempty,uuid"`
	ParentEdgeID     *string         `json:"parent_edge_id" validate:"omitempty,uuid"`
	Remarks          string          `json:"remarks"`
}

// BulkUpsertRequest carries up to 100 edges validated independently.
type BulkUpsertRequest struct {
	Edges []UpsertEdgeRequest `json:"edges" validate:"required,min=1,max=100"`
}

// BulkRowResult reports the outcome for one row of a bulk upsert. Every
// submitted row gets exactly one result; nothing is dropped silently.
type BulkRowResult struct {
	Index  int      `json:"index"`
	Valid  bool     `json:"valid"`
	EdgeID *string  `json:"edge_id,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// BulkUpsertResponse: valid rows commit, invalid rows are reported per-row.
type BulkUpsertResponse struct {
	Inserted int             `json:"inserted"`
	Results  []BulkRowResult `json:"results"`
}

// EdgeResponse is the API view of a stored BOM edge.
type EdgeResponse struct {
	ID               uuid.UUID       `json:"id"`
	ParentItemID     uuid.UUID       `json:"parent_item_id"`
	ChildItemID      uuid.UUID       `json:"child_item_id"`
	QuantityRequired decimal.Decimal `json:"quantity_required"`
	LevelNo          int             `json:"level_no"`
	CustomerID       *uuid.UUID      `json:"customer_id,omitempty"`
	ParentEdgeID     *uuid.UUID      `json:"parent_edge_id,omitempty"`
	Active           bool            `json:"active"`
	Remarks          string          `json:"remarks,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// EntryFilter narrows the flattened entry list before tree reconstruction
// and cost aggregation. Zero values mean "no filter".
type EntryFilter struct {
	Search     string     // matches item code or name, case-insensitive
	Level      int        // 0 = all levels
	Kind       string     // "" = all kinds
	CustomerID *uuid.UUID // nil = edges across all customers
}

// BOMRow is one flattened entry of a resolved BOM: the edge payload joined
// with child-item catalog fields and the rolled-up quantity for the requested
// production amount. Cost fields are filled by the cost aggregator.
type BOMRow struct {
	EdgeID           uuid.UUID       `json:"edge_id"`
	ParentEdgeID     *uuid.UUID      `json:"parent_edge_id,omitempty"`
	ParentItemID     uuid.UUID       `json:"parent_item_id"`
	ChildItemID      uuid.UUID       `json:"child_item_id"`
	ItemCode         string          `json:"item_code"`
	ItemName         string          `json:"item_name"`
	Kind             string          `json:"kind"`
	Level            int             `json:"level"`
	QuantityRequired decimal.Decimal `json:"quantity_required"`
	// ActualQuantity is the cumulative quantity of this child consumed for
	// the requested root quantity, summed across all paths to this edge.
	ActualQuantity decimal.Decimal `json:"actual_quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	ScrapWeight    decimal.Decimal `json:"scrap_weight"`
	ScrapUnitPrice decimal.Decimal `json:"scrap_unit_price"`
	MaterialCost   decimal.Decimal `json:"material_cost"`
	ScrapRevenue   decimal.Decimal `json:"scrap_revenue"`
	NetCost        decimal.Decimal `json:"net_cost"`
	Coil           bool            `json:"coil"`
	Purchased      bool            `json:"purchased"`
	Remarks        string          `json:"remarks,omitempty"`
}

// CostSummary aggregates the currently filtered row set in a single pass.
type CostSummary struct {
	TotalMaterialCost decimal.Decimal `json:"total_material_cost"`
	TotalScrapRevenue decimal.Decimal `json:"total_scrap_revenue"`
	TotalNetCost      decimal.Decimal `json:"total_net_cost"`
	CoilRows          int             `json:"coil_rows"`
	PurchasedRows     int             `json:"purchased_rows"`
	TotalRows         int             `json:"total_rows"`
}

// TreeNode is one node of the reconstructed display forest.
type TreeNode struct {
	Row      BOMRow      `json:"row"`
	Children []*TreeNode `json:"children,omitempty"`
}

// EntriesResponse is the full read-path payload for one root item.
type EntriesResponse struct {
	Rows           []BOMRow    `json:"rows"`
	Summary        CostSummary `json:"summary"`
	Tree           []*TreeNode `json:"tree,omitempty"`
	TruncatedNodes int         `json:"truncated_nodes"`
}
