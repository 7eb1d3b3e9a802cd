// Package stats computes inventory aggregates.
package stats

import "github.com/hyperengineering/smartshop/internal/types"

// Summary is the statistics view over a product list.
type Summary struct {
	TotalProducts   int     `json:"total_products"`
	TotalStockValue float64 `json:"total_stock_value"`
}

// Compute counts products and sums price times quantity.
func Compute(products []types.Product) Summary {
	s := Summary{TotalProducts: len(products)}
	for _, p := range products {
		s.TotalStockValue += p.Price * float64(p.Quantity)
	}
	return s
}
