package service

import (
	"bytes"
	"context"
	"sort"

	"bomcore/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ChildLookup supplies active direct-child edges during graph traversal.
// repository.BOMRepository satisfies it; tests use in-memory stubs.
type ChildLookup interface {
	QueryChildren(ctx context.Context, parentItemID uuid.UUID, customerID *uuid.UUID) ([]model.BOMEdge, error)
}

// Contribution is one traversed edge whose child ends up in the deduction
// set. The deduction engine writes exactly one audit row per contribution.
type Contribution struct {
	EdgeID       uuid.UUID
	ParentItemID uuid.UUID
	ChildItemID  uuid.UUID
	// Level is the traversal depth of the edge, root children = 1.
	Level int
	// QuantityRequired is the per-unit edge quantity; ParentQuantity the
	// cumulative units of the parent consumed along this path.
	QuantityRequired decimal.Decimal
	ParentQuantity   decimal.Decimal
	// Deducted = ParentQuantity × QuantityRequired.
	Deducted decimal.Decimal
}

// Resolution is the outcome of resolving one root item at one quantity.
// Deductions sums contributions per item: a node reachable via several paths
// accumulates, never overwrites.
type Resolution struct {
	Deductions    map[uuid.UUID]decimal.Decimal
	Contributions []Contribution
	// Truncated counts descendants dropped at the depth bound. The legacy
	// system dropped them silently; here the count is surfaced so operators
	// can detect under-counted rollups.
	Truncated int
}

// ResolverStrategy computes the deduction set for a produced quantity.
// Implementations must be pure: fixed graph and quantity give an identical
// result regardless of edge insertion or traversal order.
type ResolverStrategy interface {
	Name() string
	Resolve(ctx context.Context, rootItemID uuid.UUID, quantity decimal.Decimal, customerID *uuid.UUID) (*Resolution, error)
}

// graphCache memoizes child lookups for the duration of one traversal so a
// shared subcomponent is fetched once however many paths reach it.
type graphCache struct {
	lookup     ChildLookup
	customerID *uuid.UUID
	children   map[uuid.UUID][]model.BOMEdge
}

func newGraphCache(lookup ChildLookup, customerID *uuid.UUID) *graphCache {
	return &graphCache{
		lookup:     lookup,
		customerID: customerID,
		children:   make(map[uuid.UUID][]model.BOMEdge),
	}
}

func (g *graphCache) get(ctx context.Context, parentID uuid.UUID) ([]model.BOMEdge, error) {
	if edges, ok := g.children[parentID]; ok {
		return edges, nil
	}
	edges, err := g.lookup.QueryChildren(ctx, parentID, g.customerID)
	if err != nil {
		return nil, err
	}
	g.children[parentID] = edges
	return edges, nil
}

// ── Shallow strategy ─────────────────────────────────────────────────────────

// shallowResolver deducts immediate children only. Used by deployments that
// track semi-finished items as separately reported production stages.
type shallowResolver struct {
	lookup ChildLookup
}

func NewShallowResolver(lookup ChildLookup) ResolverStrategy {
	return &shallowResolver{lookup: lookup}
}

func (r *shallowResolver) Name() string { return "shallow" }

func (r *shallowResolver) Resolve(ctx context.Context, rootItemID uuid.UUID, quantity decimal.Decimal, customerID *uuid.UUID) (*Resolution, error) {
	if !quantity.IsPositive() {
		return nil, ErrNonPositiveQuantity
	}
	res := &Resolution{Deductions: make(map[uuid.UUID]decimal.Decimal)}

	edges, err := r.lookup.QueryChildren(ctx, rootItemID, customerID)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		deducted := quantity.Mul(e.QuantityRequired)
		res.Contributions = append(res.Contributions, Contribution{
			EdgeID:           e.ID,
			ParentItemID:     e.ParentItemID,
			ChildItemID:      e.ChildItemID,
			Level:            1,
			QuantityRequired: e.QuantityRequired,
			ParentQuantity:   quantity,
			Deducted:         deducted,
		})
		res.Deductions[e.ChildItemID] = res.Deductions[e.ChildItemID].Add(deducted)
	}
	sortContributions(res.Contributions)
	return res, nil
}

// ── Deep strategy ────────────────────────────────────────────────────────────

// deepResolver flattens recursively down to leaves (items with no outgoing
// edges); intermediate semi-finished nodes are traversed but never deducted.
// Depth is bounded and each path carries its own visited-edge set, so cycles
// and self-references terminate instead of looping.
type deepResolver struct {
	lookup   ChildLookup
	maxDepth int
}

func NewDeepResolver(lookup ChildLookup, maxDepth int) ResolverStrategy {
	if maxDepth < 1 {
		maxDepth = 10
	}
	return &deepResolver{lookup: lookup, maxDepth: maxDepth}
}

func (r *deepResolver) Name() string { return "deep" }

func (r *deepResolver) Resolve(ctx context.Context, rootItemID uuid.UUID, quantity decimal.Decimal, customerID *uuid.UUID) (*Resolution, error) {
	if !quantity.IsPositive() {
		return nil, ErrNonPositiveQuantity
	}
	res := &Resolution{Deductions: make(map[uuid.UUID]decimal.Decimal)}
	cache := newGraphCache(r.lookup, customerID)
	onPath := make(map[uuid.UUID]bool) // edge ids on the current path

	if err := r.walk(ctx, cache, rootItemID, quantity, 1, onPath, res); err != nil {
		return nil, err
	}
	if res.Truncated > 0 {
		log.Warn().
			Str("root_item_id", rootItemID.String()).
			Int("truncated_nodes", res.Truncated).
			Int("max_depth", r.maxDepth).
			Msg("bom resolution truncated at depth bound")
	}
	res.Contributions = mergeContributions(res.Contributions)
	sortContributions(res.Contributions)
	return res, nil
}

// mergeContributions collapses multiple path hits on the same edge into one
// entry, summing quantities. The audit trail writes exactly one row per
// (transaction, contributing edge) pair.
func mergeContributions(cs []Contribution) []Contribution {
	byEdge := make(map[uuid.UUID]int, len(cs))
	merged := cs[:0]
	for _, c := range cs {
		if i, ok := byEdge[c.EdgeID]; ok {
			merged[i].ParentQuantity = merged[i].ParentQuantity.Add(c.ParentQuantity)
			merged[i].Deducted = merged[i].Deducted.Add(c.Deducted)
			if c.Level < merged[i].Level {
				merged[i].Level = c.Level
			}
			continue
		}
		byEdge[c.EdgeID] = len(merged)
		merged = append(merged, c)
	}
	return merged
}

func (r *deepResolver) walk(ctx context.Context, cache *graphCache, parentID uuid.UUID, parentQty decimal.Decimal, level int, onPath map[uuid.UUID]bool, res *Resolution) error {
	edges, err := cache.get(ctx, parentID)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if onPath[e.ID] {
			// Cycle back onto the current path; the repeated occurrence is
			// dropped like any node past the depth bound.
			res.Truncated++
			continue
		}
		if level > r.maxDepth {
			res.Truncated++
			continue
		}
		childQty := parentQty.Mul(e.QuantityRequired)

		childEdges, err := cache.get(ctx, e.ChildItemID)
		if err != nil {
			return err
		}
		if len(childEdges) == 0 {
			// True leaf: this edge contributes to the deduction set.
			res.Contributions = append(res.Contributions, Contribution{
				EdgeID:           e.ID,
				ParentItemID:     e.ParentItemID,
				ChildItemID:      e.ChildItemID,
				Level:            level,
				QuantityRequired: e.QuantityRequired,
				ParentQuantity:   parentQty,
				Deducted:         childQty,
			})
			res.Deductions[e.ChildItemID] = res.Deductions[e.ChildItemID].Add(childQty)
			continue
		}

		onPath[e.ID] = true
		err = r.walk(ctx, cache, e.ChildItemID, childQty, level+1, onPath, res)
		delete(onPath, e.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// sortContributions orders the audit set deterministically so the resolver
// output does not depend on traversal order.
func sortContributions(cs []Contribution) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if c := bytes.Compare(a.ParentItemID[:], b.ParentItemID[:]); c != 0 {
			return c < 0
		}
		if c := bytes.Compare(a.ChildItemID[:], b.ChildItemID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.EdgeID[:], b.EdgeID[:]) < 0
	})
}
