// Package ingredient is the read side of the ingredient directory. Ingredient
// master data is maintained elsewhere; stock and balance code only looks
// ingredients up by public id, lists them, and searches them.
package ingredient

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
)

// Ingredient is a stockable item.
type Ingredient struct {
	ID           int64               `db:"id" json:"-"`
	PublicID     uuid.UUID           `db:"public_id" json:"publicId"`
	Code         string              `db:"code" json:"code"`
	Name         string              `db:"name" json:"name"`
	CategoryCode string              `db:"category_code" json:"categoryCode,omitempty"`
	MinStock     decimal.NullDecimal `db:"min_stock" json:"minStock"`
}

// Filter narrows directory listings.
type Filter struct {
	CategoryCode string
}

// SearchResult is a ranked search hit, lower Rank first.
type SearchResult struct {
	Ingredient
	Rank int `json:"rank"`
}

var (
	// ErrIngredientNotFound is returned when a public id does not resolve.
	ErrIngredientNotFound = httpx.NewError(httpx.ErrNotFound, "ingredient not found")
	// ErrCategoryNotFound is returned when a category code does not resolve.
	ErrCategoryNotFound = httpx.NewError(httpx.ErrNotFound, "ingredient category not found")
)
