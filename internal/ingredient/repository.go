package ingredient

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/kitchenstock/kitchenstock/internal/platform/db"
)

// Repository reads ingredients from PostgreSQL.
type Repository struct {
	db      db.Querier
	builder squirrel.StatementBuilderType
}

// NewRepository constructs Repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{
		db:      q,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *Repository) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(
		"i.id", "i.public_id", "i.code", "i.name",
		"COALESCE(c.code, '') AS category_code", "i.min_stock",
	).
		From("ingredients i").
		LeftJoin("ingredient_categories c ON c.id = i.category_id").
		Where(squirrel.Eq{"i.deleted_at": nil})
}

// GetByPublicID resolves an ingredient by its public identifier.
func (r *Repository) GetByPublicID(ctx context.Context, publicID uuid.UUID) (Ingredient, error) {
	sql, args, err := r.baseSelect().Where(squirrel.Eq{"i.public_id": publicID}).ToSql()
	if err != nil {
		return Ingredient{}, fmt.Errorf("ingredient: build get: %w", err)
	}
	var ing Ingredient
	if err := pgxscan.Get(ctx, r.db, &ing, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Ingredient{}, ErrIngredientNotFound
		}
		return Ingredient{}, fmt.Errorf("ingredient: get: %w", err)
	}
	return ing, nil
}

// ListByIDs loads ingredients by internal id, ordered by id.
func (r *Repository) ListByIDs(ctx context.Context, ids []int64) ([]Ingredient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sql, args, err := r.baseSelect().Where(squirrel.Eq{"i.id": ids}).OrderBy("i.id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("ingredient: build list by ids: %w", err)
	}
	var items []Ingredient
	if err := pgxscan.Select(ctx, r.db, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("ingredient: list by ids: %w", err)
	}
	return items, nil
}

// List returns every active ingredient matching filter, ordered by id.
// An unknown category code yields ErrCategoryNotFound.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Ingredient, error) {
	q := r.baseSelect().OrderBy("i.id")
	if filter.CategoryCode != "" {
		exists, err := r.categoryExists(ctx, filter.CategoryCode)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrCategoryNotFound
		}
		q = q.Where(squirrel.Eq{"c.code": filter.CategoryCode})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ingredient: build list: %w", err)
	}
	var items []Ingredient
	if err := pgxscan.Select(ctx, r.db, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("ingredient: list: %w", err)
	}
	return items, nil
}

// Search ranks active ingredients against query by code and name, ignoring
// case and Vietnamese diacritics.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	all, err := r.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	return Rank(all, query, limit), nil
}

func (r *Repository) categoryExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ingredient_categories WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ingredient: category lookup: %w", err)
	}
	return exists, nil
}
