package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"bomcore/internal/dto"
	"bomcore/internal/model"
	"bomcore/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BulkUpsertLimit caps one bulk request. Rows past the limit are rejected at
// binding time, not truncated.
const BulkUpsertLimit = 100

// BOMService is the write and read surface of the BOM edge graph.
type BOMService interface {
	UpsertEdge(ctx context.Context, req dto.UpsertEdgeRequest) (*dto.EdgeResponse, error)
	BulkUpsert(ctx context.Context, req dto.BulkUpsertRequest) (*dto.BulkUpsertResponse, error)
	DeactivateEdge(ctx context.Context, id uuid.UUID) error
	QueryChildren(ctx context.Context, parentItemID uuid.UUID, customerID *uuid.UUID) ([]dto.EdgeResponse, error)
	// ListEntries flattens the BOM under rootItemID for the given produced
	// quantity, applies the filter, fills costs, and optionally reconstructs
	// the display forest.
	ListEntries(ctx context.Context, rootItemID uuid.UUID, quantity decimal.Decimal, filter dto.EntryFilter, withTree bool) (*dto.EntriesResponse, error)
}

type bomService struct {
	edges    repository.BOMRepository
	items    repository.ItemRepository
	maxDepth int
}

func NewBOMService(edges repository.BOMRepository, items repository.ItemRepository, maxDepth int) BOMService {
	if maxDepth < 1 {
		maxDepth = 10
	}
	return &bomService{edges: edges, items: items, maxDepth: maxDepth}
}

// runTx executes fn inside a GORM transaction when db is available, or calls
// fn(nil) directly when db is nil (unit test mode with stub repositories).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── Writes ───────────────────────────────────────────────────────────────────

func (s *bomService) UpsertEdge(ctx context.Context, req dto.UpsertEdgeRequest) (*dto.EdgeResponse, error) {
	edge, rowErrs, err := s.buildEdge(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(rowErrs) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(rowErrs, "; "))
	}
	if err := s.edges.Upsert(ctx, edge); err != nil {
		return nil, err
	}
	resp := toEdgeResponse(edge)
	return &resp, nil
}

func (s *bomService) BulkUpsert(ctx context.Context, req dto.BulkUpsertRequest) (*dto.BulkUpsertResponse, error) {
	if len(req.Edges) > BulkUpsertLimit {
		return nil, fmt.Errorf("bulk upsert accepts at most %d rows, got %d", BulkUpsertLimit, len(req.Edges))
	}

	resp := &dto.BulkUpsertResponse{Results: make([]dto.BulkRowResult, len(req.Edges))}
	var valid []*model.BOMEdge
	var validIdx []int

	// Each row is validated independently; an invalid row never blocks its
	// neighbours (partial-success semantics).
	for i, rowReq := range req.Edges {
		edge, rowErrs, err := s.buildEdge(ctx, rowReq)
		if err != nil {
			return nil, err
		}
		if len(rowErrs) > 0 {
			resp.Results[i] = dto.BulkRowResult{Index: i, Valid: false, Errors: rowErrs}
			continue
		}
		resp.Results[i] = dto.BulkRowResult{Index: i, Valid: true}
		valid = append(valid, edge)
		validIdx = append(validIdx, i)
	}

	// The valid subset commits as one unit; per-row validation already
	// happened, so a failure here is infrastructural, not data-driven.
	err := runTx(ctx, s.edges.DB(), func(tx *gorm.DB) error {
		if tx == nil {
			for _, e := range valid {
				if err := s.edges.Upsert(ctx, e); err != nil {
					return err
				}
			}
			return nil
		}
		return s.edges.CreateBatchTx(tx, valid)
	})
	if err != nil {
		return nil, err
	}

	for k, i := range validIdx {
		id := valid[k].ID.String()
		resp.Results[i].EdgeID = &id
	}
	resp.Inserted = len(valid)
	return resp, nil
}

func (s *bomService) DeactivateEdge(ctx context.Context, id uuid.UUID) error {
	if err := s.edges.Deactivate(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("edge %s: %w", id, ErrNotFound)
		}
		return err
	}
	return nil
}

// buildEdge validates one request row and converts it to a model. Field
// problems come back as rowErrs; err is reserved for infrastructure failures.
// Self-references and duplicate (parent, child, customer) tuples pass
// deliberately: duplicates are summed by every consumer.
func (s *bomService) buildEdge(ctx context.Context, req dto.UpsertEdgeRequest) (*model.BOMEdge, []string, error) {
	var rowErrs []string

	if !req.QuantityRequired.IsPositive() {
		rowErrs = append(rowErrs, "quantity_required must be greater than zero")
	}
	if req.LevelNo < 1 {
		rowErrs = append(rowErrs, "level_no must be at least 1")
	}

	parentID, err := uuid.Parse(req.ParentItemID)
	if err != nil {
		rowErrs = append(rowErrs, "parent_item_id is not a valid uuid")
	}
	childID, err := uuid.Parse(req.ChildItemID)
	if err != nil {
		rowErrs = append(rowErrs, "child_item_id is not a valid uuid")
	}

	var customerID, parentEdgeID, edgeID *uuid.UUID
	if req.CustomerID != nil {
		id, err := uuid.Parse(*req.CustomerID)
		if err != nil {
			rowErrs = append(rowErrs, "customer_id is not a valid uuid")
		} else {
			customerID = &id
		}
	}
	if req.ParentEdgeID != nil {
		id, err := uuid.Parse(*req.ParentEdgeID)
		if err != nil {
			rowErrs = append(rowErrs, "parent_edge_id is not a valid uuid")
		} else {
			parentEdgeID = &id
		}
	}
	if req.ID != nil {
		id, err := uuid.Parse(*req.ID)
		if err != nil {
			rowErrs = append(rowErrs, "id is not a valid uuid")
		} else {
			edgeID = &id
		}
	}
	if len(rowErrs) > 0 {
		return nil, rowErrs, nil
	}

	for _, ref := range []struct {
		field string
		id    uuid.UUID
	}{{"parent_item_id", parentID}, {"child_item_id", childID}} {
		item, err := s.items.FindByID(ctx, ref.id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				rowErrs = append(rowErrs, ref.field+" references a missing item")
				continue
			}
			return nil, nil, err
		}
		if !item.Active {
			rowErrs = append(rowErrs, ref.field+" references an inactive item")
		}
	}
	if len(rowErrs) > 0 {
		return nil, rowErrs, nil
	}

	edge := &model.BOMEdge{
		ParentItemID:     parentID,
		ChildItemID:      childID,
		QuantityRequired: req.QuantityRequired,
		LevelNo:          req.LevelNo,
		CustomerID:       customerID,
		ParentEdgeID:     parentEdgeID,
		Active:           true,
		Remarks:          req.Remarks,
	}
	if edgeID != nil {
		edge.ID = *edgeID
	}
	return edge, nil, nil
}

// ── Reads ────────────────────────────────────────────────────────────────────

func (s *bomService) QueryChildren(ctx context.Context, parentItemID uuid.UUID, customerID *uuid.UUID) ([]dto.EdgeResponse, error) {
	edges, err := s.edges.QueryChildren(ctx, parentItemID, customerID)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.EdgeResponse, len(edges))
	for i := range edges {
		resp[i] = toEdgeResponse(&edges[i])
	}
	return resp, nil
}

// flatEntry accumulates one stored edge during flattening. A shared edge
// reached via several paths sums its cumulative quantity, matching the
// resolver's multi-path semantics.
type flatEntry struct {
	edge   model.BOMEdge
	actual decimal.Decimal
}

func (s *bomService) ListEntries(ctx context.Context, rootItemID uuid.UUID, quantity decimal.Decimal, filter dto.EntryFilter, withTree bool) (*dto.EntriesResponse, error) {
	if quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}
	if !quantity.IsPositive() {
		return nil, ErrNonPositiveQuantity
	}

	cache := newGraphCache(s.edges, filter.CustomerID)
	entries := make(map[uuid.UUID]*flatEntry)
	truncated := 0
	onPath := make(map[uuid.UUID]bool)

	var walk func(parentID uuid.UUID, parentQty decimal.Decimal, level int) error
	walk = func(parentID uuid.UUID, parentQty decimal.Decimal, level int) error {
		edges, err := cache.get(ctx, parentID)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if onPath[e.ID] {
				truncated++
				continue
			}
			if level > s.maxDepth {
				truncated++
				continue
			}
			childQty := parentQty.Mul(e.QuantityRequired)
			if fe, ok := entries[e.ID]; ok {
				fe.actual = fe.actual.Add(childQty)
			} else {
				entries[e.ID] = &flatEntry{edge: e, actual: childQty}
			}
			onPath[e.ID] = true
			err := walk(e.ChildItemID, childQty, level+1)
			delete(onPath, e.ID)
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rootItemID, quantity, 1); err != nil {
		return nil, err
	}

	rows, err := s.toRows(ctx, entries)
	if err != nil {
		return nil, err
	}
	rows = applyFilter(rows, filter)

	resp := &dto.EntriesResponse{
		Rows:           rows,
		Summary:        ComputeCosts(rows),
		TruncatedNodes: truncated,
	}
	if withTree {
		resp.Tree = BuildForest(rows)
	}
	return resp, nil
}

// toRows joins flattened edges with child-item catalog attributes and orders
// them by (level, item code) for stable display.
func (s *bomService) toRows(ctx context.Context, entries map[uuid.UUID]*flatEntry) ([]dto.BOMRow, error) {
	if len(entries) == 0 {
		return []dto.BOMRow{}, nil
	}

	idSet := make(map[uuid.UUID]struct{})
	for _, fe := range entries {
		idSet[fe.edge.ChildItemID] = struct{}{}
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	items, err := s.items.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.Item, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}

	rows := make([]dto.BOMRow, 0, len(entries))
	for _, fe := range entries {
		row := dto.BOMRow{
			EdgeID:           fe.edge.ID,
			ParentEdgeID:     fe.edge.ParentEdgeID,
			ParentItemID:     fe.edge.ParentItemID,
			ChildItemID:      fe.edge.ChildItemID,
			Level:            fe.edge.LevelNo,
			QuantityRequired: fe.edge.QuantityRequired,
			ActualQuantity:   fe.actual,
			Remarks:          fe.edge.Remarks,
		}
		if item, ok := byID[fe.edge.ChildItemID]; ok {
			row.ItemCode = item.Code
			row.ItemName = item.Name
			row.Kind = item.Kind
			row.UnitPrice = item.UnitPrice
			row.ScrapWeight = item.ScrapWeight
			row.ScrapUnitPrice = item.ScrapUnitPrice
			row.Coil = item.Coil
			row.Purchased = item.Purchased
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Level != rows[j].Level {
			return rows[i].Level < rows[j].Level
		}
		if rows[i].ItemCode != rows[j].ItemCode {
			return rows[i].ItemCode < rows[j].ItemCode
		}
		return rows[i].EdgeID.String() < rows[j].EdgeID.String()
	})
	return rows, nil
}

func applyFilter(rows []dto.BOMRow, filter dto.EntryFilter) []dto.BOMRow {
	out := rows[:0]
	search := strings.ToLower(filter.Search)
	for _, r := range rows {
		if filter.Level > 0 && r.Level != filter.Level {
			continue
		}
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.ItemCode), search) &&
			!strings.Contains(strings.ToLower(r.ItemName), search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func toEdgeResponse(e *model.BOMEdge) dto.EdgeResponse {
	return dto.EdgeResponse{
		ID:               e.ID,
		ParentItemID:     e.ParentItemID,
		ChildItemID:      e.ChildItemID,
		QuantityRequired: e.QuantityRequired,
		LevelNo:          e.LevelNo,
		CustomerID:       e.CustomerID,
		ParentEdgeID:     e.ParentEdgeID,
		Active:           e.Active,
		Remarks:          e.Remarks,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}
