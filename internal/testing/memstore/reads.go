package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/ingredient"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/snapshot"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

func (s *Store) sumWhere(dir stock.Direction, match func(snapKey) bool) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for k, v := range s.st.snapshots[dir] {
		if match(k) {
			sum = sum.Add(v)
		}
	}
	return sum
}

// SumUpTo mirrors snapshot.Store.SumUpTo.
func (s *Store) SumUpTo(_ context.Context, dir stock.Direction, ingredientID int64, date time.Time) (decimal.Decimal, error) {
	day := shared.FormatDate(date)
	return s.sumWhere(dir, func(k snapKey) bool { return k.ingredientID == ingredientID && k.date <= day }), nil
}

// SumBefore mirrors snapshot.Store.SumBefore.
func (s *Store) SumBefore(_ context.Context, dir stock.Direction, ingredientID int64, date time.Time) (decimal.Decimal, error) {
	day := shared.FormatDate(date)
	return s.sumWhere(dir, func(k snapKey) bool { return k.ingredientID == ingredientID && k.date < day }), nil
}

// SumRange mirrors snapshot.Store.SumRange.
func (s *Store) SumRange(_ context.Context, dir stock.Direction, ingredientID int64, from, to time.Time) (decimal.Decimal, error) {
	lo, hi := shared.FormatDate(from), shared.FormatDate(to)
	return s.sumWhere(dir, func(k snapKey) bool {
		return k.ingredientID == ingredientID && k.date >= lo && k.date <= hi
	}), nil
}

// SumUpToByIngredient mirrors snapshot.Store.SumUpToByIngredient.
func (s *Store) SumUpToByIngredient(_ context.Context, dir stock.Direction, date time.Time, ingredientIDs []int64) (map[int64]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := shared.FormatDate(date)
	filter := idSet(ingredientIDs)
	out := map[int64]decimal.Decimal{}
	for k, v := range s.st.snapshots[dir] {
		if k.date > day || (filter != nil && !filter[k.ingredientID]) {
			continue
		}
		out[k.ingredientID] = out[k.ingredientID].Add(v)
	}
	return out, nil
}

// SumRangeByIngredient mirrors snapshot.Store.SumRangeByIngredient.
func (s *Store) SumRangeByIngredient(_ context.Context, dir stock.Direction, from, to time.Time) ([]snapshot.Total, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := shared.FormatDate(from), shared.FormatDate(to)
	sums := map[int64]decimal.Decimal{}
	for k, v := range s.st.snapshots[dir] {
		if k.date >= lo && k.date <= hi {
			sums[k.ingredientID] = sums[k.ingredientID].Add(v)
		}
	}
	out := make([]snapshot.Total, 0, len(sums))
	for id, qty := range sums {
		out = append(out, snapshot.Total{IngredientID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngredientID < out[j].IngredientID })
	return out, nil
}

// SumRangeByDate mirrors snapshot.Store.SumRangeByDate.
func (s *Store) SumRangeByDate(_ context.Context, dir stock.Direction, from, to time.Time) ([]snapshot.DayTotal, error) {
	return s.days(dir, from, to, func(snapKey) bool { return true }), nil
}

// ListRange mirrors snapshot.Store.ListRange.
func (s *Store) ListRange(_ context.Context, dir stock.Direction, ingredientID int64, from, to time.Time) ([]snapshot.DayTotal, error) {
	return s.days(dir, from, to, func(k snapKey) bool { return k.ingredientID == ingredientID }), nil
}

func (s *Store) days(dir stock.Direction, from, to time.Time, match func(snapKey) bool) []snapshot.DayTotal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := shared.FormatDate(from), shared.FormatDate(to)
	sums := map[string]decimal.Decimal{}
	for k, v := range s.st.snapshots[dir] {
		if k.date >= lo && k.date <= hi && match(k) {
			sums[k.date] = sums[k.date].Add(v)
		}
	}
	out := make([]snapshot.DayTotal, 0, len(sums))
	for day, qty := range sums {
		// DATE columns scan as UTC midnight.
		d, _ := time.Parse(shared.DateLayout, day)
		out = append(out, snapshot.DayTotal{StockDate: d, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockDate.Before(out[j].StockDate) })
	return out
}

// GetByPublicID mirrors ingredient.Repository.GetByPublicID.
func (s *Store) GetByPublicID(_ context.Context, publicID uuid.UUID) (ingredient.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ing := range s.ingredients {
		if ing.PublicID == publicID {
			return ing, nil
		}
	}
	return ingredient.Ingredient{}, ingredient.ErrIngredientNotFound
}

// ListByIDs mirrors ingredient.Repository.ListByIDs.
func (s *Store) ListByIDs(_ context.Context, ids []int64) ([]ingredient.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := idSet(ids)
	var out []ingredient.Ingredient
	for _, ing := range s.ingredients {
		if set[ing.ID] {
			out = append(out, ing)
		}
	}
	return out, nil
}

// List mirrors ingredient.Repository.List.
func (s *Store) List(_ context.Context, filter ingredient.Filter) ([]ingredient.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if filter.CategoryCode != "" && !s.categories[filter.CategoryCode] {
		return nil, ingredient.ErrCategoryNotFound
	}
	var out []ingredient.Ingredient
	for _, ing := range s.ingredients {
		if filter.CategoryCode == "" || ing.CategoryCode == filter.CategoryCode {
			out = append(out, ing)
		}
	}
	return out, nil
}

// Search mirrors ingredient.Repository.Search.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]ingredient.SearchResult, error) {
	all, err := s.List(ctx, ingredient.Filter{})
	if err != nil {
		return nil, err
	}
	return ingredient.Rank(all, query, limit), nil
}
