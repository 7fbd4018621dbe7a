// Package balance answers ending-balance, ledger and movement questions from
// closed snapshots. The current business day is always read from the live
// daily ledgers instead, so balances never depend on whether today has been
// closed yet.
package balance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/ingredient"
	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
)

const (
	defaultMoversLimit = 10
	maxMoversLimit     = 100
	defaultRangeDays   = 30
)

// IngredientRef identifies an ingredient in report output.
type IngredientRef struct {
	PublicID     uuid.UUID `json:"publicId"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	CategoryCode string    `json:"categoryCode,omitempty"`
}

func refOf(ing ingredient.Ingredient) IngredientRef {
	return IngredientRef{PublicID: ing.PublicID, Code: ing.Code, Name: ing.Name, CategoryCode: ing.CategoryCode}
}

// Balance is an ingredient's cumulative position as of a date.
type Balance struct {
	Ingredient IngredientRef   `json:"ingredient"`
	Date       time.Time       `json:"date"`
	In         decimal.Decimal `json:"in"`
	Out        decimal.Decimal `json:"out"`
	Ending     decimal.Decimal `json:"ending"`
	Live       bool            `json:"live"`
}

// LedgerRow is one active date of a ledger.
type LedgerRow struct {
	Date   time.Time       `json:"date"`
	In     decimal.Decimal `json:"in"`
	Out    decimal.Decimal `json:"out"`
	Ending decimal.Decimal `json:"ending"`
}

// Ledger is a running balance over a date range.
type Ledger struct {
	Ingredient IngredientRef   `json:"ingredient"`
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Opening    decimal.Decimal `json:"opening"`
	Closing    decimal.Decimal `json:"closing"`
	Rows       []LedgerRow     `json:"rows"`
}

// AlertItem is an ingredient at or below its threshold.
type AlertItem struct {
	Ingredient IngredientRef   `json:"ingredient"`
	Ending     decimal.Decimal `json:"ending"`
	Threshold  decimal.Decimal `json:"threshold"`
}

// Alerts partitions ingredients into low and out of stock.
type Alerts struct {
	Date      time.Time       `json:"date"`
	Threshold decimal.Decimal `json:"threshold"`
	Low       []AlertItem     `json:"low"`
	Out       []AlertItem     `json:"out"`
}

// Mover is an ingredient's total movement over a range.
type Mover struct {
	Ingredient IngredientRef   `json:"ingredient"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// DaySummary is the movement of one date across all ingredients.
type DaySummary struct {
	Date time.Time       `json:"date"`
	In   decimal.Decimal `json:"in"`
	Out  decimal.Decimal `json:"out"`
	Net  decimal.Decimal `json:"net"`
}

// Summary aggregates movement over a range.
type Summary struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	TotalIn  decimal.Decimal `json:"totalIn"`
	TotalOut decimal.Decimal `json:"totalOut"`
	Net      decimal.Decimal `json:"net"`
	Days     []DaySummary    `json:"days"`
}

// ErrInvalidRange rejects ranges that end before they start.
var ErrInvalidRange = httpx.NewError(httpx.ErrValidation, "balance: from must not be after to")
