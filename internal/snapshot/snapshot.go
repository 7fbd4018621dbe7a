// Package snapshot stores per-day, per-ingredient movement totals produced by
// close-day and answers the range sums balance reads are built from.
package snapshot

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/stock"
)

// Total is the summed quantity of one ingredient.
type Total struct {
	IngredientID int64           `db:"ingredient_id"`
	Quantity     decimal.Decimal `db:"quantity"`
}

// DayTotal is a summed quantity for one business date.
type DayTotal struct {
	StockDate time.Time       `db:"stock_date"`
	Quantity  decimal.Decimal `db:"quantity"`
}

// Aggregate sums item quantities per ingredient, ordered by ingredient id.
// Ingredients without items are absent from the result.
func Aggregate(items []stock.DailyItem) []Total {
	sums := make(map[int64]decimal.Decimal)
	for _, it := range items {
		sums[it.IngredientID] = sums[it.IngredientID].Add(it.Quantity)
	}
	out := make([]Total, 0, len(sums))
	for id, qty := range sums {
		out = append(out, Total{IngredientID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngredientID < out[j].IngredientID })
	return out
}

// Sum adds up every total.
func Sum(totals []Total) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t.Quantity)
	}
	return sum
}

// IngredientIDs lists the ingredient ids present in totals.
func IngredientIDs(totals []Total) []int64 {
	ids := make([]int64, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.IngredientID)
	}
	return ids
}
