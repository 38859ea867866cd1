package service

import (
	"bomcore/internal/dto"
)

// ComputeCosts fills per-row cost fields in place and aggregates the filtered
// set in a single pass; the full graph is never re-traversed.
//
// Per row:
//
//	material_cost = quantity_required × unit_price
//	scrap_revenue = actual_quantity × scrap_weight × scrap_unit_price
//	net_cost      = material_cost − scrap_revenue
func ComputeCosts(rows []dto.BOMRow) dto.CostSummary {
	var summary dto.CostSummary
	for i := range rows {
		r := &rows[i]
		r.MaterialCost = r.QuantityRequired.Mul(r.UnitPrice)
		r.ScrapRevenue = r.ActualQuantity.Mul(r.ScrapWeight).Mul(r.ScrapUnitPrice)
		r.NetCost = r.MaterialCost.Sub(r.ScrapRevenue)

		summary.TotalMaterialCost = summary.TotalMaterialCost.Add(r.MaterialCost)
		summary.TotalScrapRevenue = summary.TotalScrapRevenue.Add(r.ScrapRevenue)
		summary.TotalNetCost = summary.TotalNetCost.Add(r.NetCost)
		if r.Coil {
			summary.CoilRows++
		}
		if r.Purchased {
			summary.PurchasedRows++
		}
	}
	summary.TotalRows = len(rows)
	return summary
}
