package snapshot

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/db"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

// Store reads and writes snapshot rows for both directions.
type Store struct {
	db      db.Querier
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewStore binds snapshot statements to q.
func NewStore(q db.Querier) *Store {
	return &Store{
		db:      q,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

func table(dir stock.Direction) string {
	return "stock_" + dir.String() + "_snapshots"
}

func column(dir stock.Direction) string {
	return "quantity_" + dir.String()
}

// Upsert writes one row per total for date, replacing the stored quantity.
// Large sets are split into statements of db.InsertBatchRows rows.
func (s *Store) Upsert(ctx context.Context, dir stock.Direction, date time.Time, totals []Total) (int64, error) {
	now := s.now()
	col := column(dir)
	conflict := fmt.Sprintf("ON CONFLICT (stock_date, ingredient_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s, updated_at = EXCLUDED.updated_at", col)
	var affected int64
	for batch := range slices.Chunk(totals, db.InsertBatchRows) {
		q := s.builder.Insert(table(dir)).Columns("public_id", "stock_date", "ingredient_id", col, "created_at", "updated_at")
		for _, t := range batch {
			q = q.Values(uuid.New(), date, t.IngredientID, t.Quantity, now, now)
		}
		sql, args, err := q.Suffix(conflict).ToSql()
		if err != nil {
			return 0, fmt.Errorf("snapshot: build %s upsert: %w", dir, err)
		}
		tag, err := s.db.Exec(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("snapshot: %s upsert: %w", dir, err)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

// Prune deletes rows of date whose ingredient is not in keep.
func (s *Store) Prune(ctx context.Context, dir stock.Direction, date time.Time, keep []int64) (int64, error) {
	q := s.builder.Delete(table(dir)).Where(squirrel.Eq{"stock_date": date})
	if len(keep) > 0 {
		q = q.Where(squirrel.NotEq{"ingredient_id": keep})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("snapshot: build %s prune: %w", dir, err)
	}
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("snapshot: %s prune: %w", dir, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) sum(ctx context.Context, dir stock.Direction, where squirrel.Sqlizer) (decimal.Decimal, error) {
	sql, args, err := s.builder.Select(fmt.Sprintf("COALESCE(SUM(%s), 0)", column(dir))).
		From(table(dir)).
		Where(where).
		ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("snapshot: build %s sum: %w", dir, err)
	}
	var total decimal.Decimal
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("snapshot: %s sum: %w", dir, err)
	}
	return total, nil
}

// SumUpTo totals an ingredient's snapshots dated on or before date.
func (s *Store) SumUpTo(ctx context.Context, dir stock.Direction, ingredientID int64, date time.Time) (decimal.Decimal, error) {
	return s.sum(ctx, dir, squirrel.And{
		squirrel.Eq{"ingredient_id": ingredientID},
		squirrel.LtOrEq{"stock_date": date},
	})
}

// SumBefore totals an ingredient's snapshots dated strictly before date.
func (s *Store) SumBefore(ctx context.Context, dir stock.Direction, ingredientID int64, date time.Time) (decimal.Decimal, error) {
	return s.sum(ctx, dir, squirrel.And{
		squirrel.Eq{"ingredient_id": ingredientID},
		squirrel.Lt{"stock_date": date},
	})
}

// SumRange totals an ingredient's snapshots dated within [from, to].
func (s *Store) SumRange(ctx context.Context, dir stock.Direction, ingredientID int64, from, to time.Time) (decimal.Decimal, error) {
	return s.sum(ctx, dir, squirrel.And{
		squirrel.Eq{"ingredient_id": ingredientID},
		squirrel.GtOrEq{"stock_date": from},
		squirrel.LtOrEq{"stock_date": to},
	})
}

func (s *Store) totals(ctx context.Context, dir stock.Direction, where squirrel.Sqlizer) ([]Total, error) {
	sql, args, err := s.builder.Select("ingredient_id", fmt.Sprintf("SUM(%s) AS quantity", column(dir))).
		From(table(dir)).
		Where(where).
		GroupBy("ingredient_id").
		OrderBy("ingredient_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("snapshot: build %s totals: %w", dir, err)
	}
	var out []Total
	if err := pgxscan.Select(ctx, s.db, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("snapshot: %s totals: %w", dir, err)
	}
	return out, nil
}

// SumUpToByIngredient totals snapshots dated on or before date per
// ingredient. A nil ingredientIDs slice covers every ingredient.
func (s *Store) SumUpToByIngredient(ctx context.Context, dir stock.Direction, date time.Time, ingredientIDs []int64) (map[int64]decimal.Decimal, error) {
	where := squirrel.And{squirrel.LtOrEq{"stock_date": date}}
	if ingredientIDs != nil {
		where = append(where, squirrel.Eq{"ingredient_id": ingredientIDs})
	}
	rows, err := s.totals(ctx, dir, where)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.IngredientID] = r.Quantity
	}
	return out, nil
}

// SumRangeByIngredient totals snapshots in [from, to] per ingredient.
func (s *Store) SumRangeByIngredient(ctx context.Context, dir stock.Direction, from, to time.Time) ([]Total, error) {
	return s.totals(ctx, dir, squirrel.And{
		squirrel.GtOrEq{"stock_date": from},
		squirrel.LtOrEq{"stock_date": to},
	})
}

// SumRangeByDate totals snapshots in [from, to] per date across ingredients.
func (s *Store) SumRangeByDate(ctx context.Context, dir stock.Direction, from, to time.Time) ([]DayTotal, error) {
	return s.days(ctx, dir, squirrel.And{
		squirrel.GtOrEq{"stock_date": from},
		squirrel.LtOrEq{"stock_date": to},
	})
}

// ListRange returns an ingredient's per-date snapshot quantities in [from, to].
func (s *Store) ListRange(ctx context.Context, dir stock.Direction, ingredientID int64, from, to time.Time) ([]DayTotal, error) {
	return s.days(ctx, dir, squirrel.And{
		squirrel.Eq{"ingredient_id": ingredientID},
		squirrel.GtOrEq{"stock_date": from},
		squirrel.LtOrEq{"stock_date": to},
	})
}

func (s *Store) days(ctx context.Context, dir stock.Direction, where squirrel.Sqlizer) ([]DayTotal, error) {
	sql, args, err := s.builder.Select("stock_date", fmt.Sprintf("SUM(%s) AS quantity", column(dir))).
		From(table(dir)).
		Where(where).
		GroupBy("stock_date").
		OrderBy("stock_date").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("snapshot: build %s day totals: %w", dir, err)
	}
	var out []DayTotal
	if err := pgxscan.Select(ctx, s.db, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("snapshot: %s day totals: %w", dir, err)
	}
	return out, nil
}
