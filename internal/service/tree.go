package service

import (
	"bomcore/internal/dto"

	"github.com/google/uuid"
)

// BuildForest rebuilds the display forest from an already-filtered flat row
// set. Level-1 rows become roots. For deeper rows the parent is located in
// this order:
//
//  1. the row's explicit parent edge, when present in the set;
//  2. a row whose child item is this row's parent item at level-1 above;
//  3. any row sharing this row's parent item at level-1 above;
//  4. none found — the row is promoted to a root rather than dropped.
//
// Fallbacks 2 and 3 keep legacy rows without a parent-edge reference
// displayable after filtering has removed the exact matching row.
// Runs in O(n) over prebuilt id→node indexes.
func BuildForest(rows []dto.BOMRow) []*dto.TreeNode {
	if len(rows) == 0 {
		return []*dto.TreeNode{}
	}

	nodes := make([]*dto.TreeNode, len(rows))
	byEdgeID := make(map[uuid.UUID]*dto.TreeNode, len(rows))
	// childAt[level][childItemID] and parentAt[level][parentItemID] hold the
	// first row seen at that slot; later duplicates attach to the same node.
	childAt := make(map[int]map[uuid.UUID]*dto.TreeNode)
	parentAt := make(map[int]map[uuid.UUID]*dto.TreeNode)

	for i := range rows {
		n := &dto.TreeNode{Row: rows[i]}
		nodes[i] = n
		if _, ok := byEdgeID[rows[i].EdgeID]; !ok {
			byEdgeID[rows[i].EdgeID] = n
		}
		lvl := rows[i].Level
		if childAt[lvl] == nil {
			childAt[lvl] = make(map[uuid.UUID]*dto.TreeNode)
		}
		if _, ok := childAt[lvl][rows[i].ChildItemID]; !ok {
			childAt[lvl][rows[i].ChildItemID] = n
		}
		if parentAt[lvl] == nil {
			parentAt[lvl] = make(map[uuid.UUID]*dto.TreeNode)
		}
		if _, ok := parentAt[lvl][rows[i].ParentItemID]; !ok {
			parentAt[lvl][rows[i].ParentItemID] = n
		}
	}

	var roots []*dto.TreeNode
	for _, n := range nodes {
		if n.Row.Level <= 1 {
			roots = append(roots, n)
			continue
		}
		parent := findParent(n, byEdgeID, childAt, parentAt)
		if parent == nil || parent == n {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	return roots
}

func findParent(n *dto.TreeNode, byEdgeID map[uuid.UUID]*dto.TreeNode, childAt, parentAt map[int]map[uuid.UUID]*dto.TreeNode) *dto.TreeNode {
	if n.Row.ParentEdgeID != nil {
		if p, ok := byEdgeID[*n.Row.ParentEdgeID]; ok {
			return p
		}
	}
	above := n.Row.Level - 1
	if p, ok := childAt[above][n.Row.ParentItemID]; ok {
		return p
	}
	if p, ok := parentAt[above][n.Row.ParentItemID]; ok {
		return p
	}
	return nil
}
