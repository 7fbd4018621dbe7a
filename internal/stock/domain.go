// Package stock holds the daily stock-in/stock-out ledgers and their
// archived history. Both directions share one implementation; Direction
// selects the tables.
package stock

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
)

// Direction distinguishes stock entering from stock leaving the kitchen.
type Direction string

const (
	// DirectionIn records received stock.
	DirectionIn Direction = "in"
	// DirectionOut records consumed or issued stock.
	DirectionOut Direction = "out"
)

// AllDirections lists every direction in close order.
func AllDirections() []Direction {
	return []Direction{DirectionIn, DirectionOut}
}

// ParseDirection accepts "in" or "out" in any case.
func ParseDirection(value string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(value)))
	if !d.Valid() {
		return "", httpx.NewError(httpx.ErrValidation, fmt.Sprintf("stock: unknown direction %q", value))
	}
	return d, nil
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

func (d Direction) String() string {
	return string(d)
}

func (d Direction) dailyTable() string       { return "stock_" + string(d) + "_dailies" }
func (d Direction) dailyItemTable() string   { return "stock_" + string(d) + "_daily_items" }
func (d Direction) historyTable() string     { return "stock_" + string(d) + "_histories" }
func (d Direction) historyItemTable() string { return "stock_" + string(d) + "_history_items" }

// DailyHeader is a batch of same-day movements opened by a user.
type DailyHeader struct {
	ID              int64
	PublicID        uuid.UUID
	Direction       Direction
	StockDate       time.Time
	Note            string
	CreatedByUserID int64
	CreatedAt       time.Time
	UpdatedByUserID *int64
	UpdatedAt       *time.Time
	ItemCount       int
	Items           []DailyItem
}

// DailyItem is one ingredient movement inside a daily header.
type DailyItem struct {
	ID                 int64
	PublicID           uuid.UUID
	DailyID            int64
	StockDate          time.Time
	IngredientID       int64
	IngredientPublicID uuid.UUID
	Quantity           decimal.Decimal
	Note               string
	CreatedByUserID    int64
	CreatedAt          time.Time
	UpdatedByUserID    *int64
	UpdatedAt          *time.Time
}

// HistoryHeader is the archived copy of a daily header written by close-day.
type HistoryHeader struct {
	ID              int64
	PublicID        uuid.UUID
	Direction       Direction
	DailyID         int64
	StockDate       time.Time
	Note            string
	CreatedByUserID int64
	CreatedAt       time.Time
	UpdatedByUserID *int64
	UpdatedAt       *time.Time
	ArchivedAt      time.Time
	ItemCount       int
	Items           []HistoryItem
}

// HistoryItem is the archived copy of a daily item.
type HistoryItem struct {
	ID                 int64
	PublicID           uuid.UUID
	HistoryID          int64
	DailyItemID        int64
	StockDate          time.Time
	IngredientID       int64
	IngredientPublicID uuid.UUID
	Quantity           decimal.Decimal
	Note               string
	CreatedByUserID    int64
	CreatedAt          time.Time
	UpdatedByUserID    *int64
	UpdatedAt          *time.Time
}

// ArchiveHeader copies a daily header into a new history header.
func ArchiveHeader(d DailyHeader, archivedAt time.Time) HistoryHeader {
	return HistoryHeader{
		PublicID:        uuid.New(),
		Direction:       d.Direction,
		DailyID:         d.ID,
		StockDate:       d.StockDate,
		Note:            d.Note,
		CreatedByUserID: d.CreatedByUserID,
		CreatedAt:       d.CreatedAt,
		UpdatedByUserID: d.UpdatedByUserID,
		UpdatedAt:       d.UpdatedAt,
		ArchivedAt:      archivedAt,
	}
}

// ArchiveItem copies a daily item into a new history item.
func ArchiveItem(it DailyItem) HistoryItem {
	return HistoryItem{
		PublicID:           uuid.New(),
		DailyItemID:        it.ID,
		StockDate:          it.StockDate,
		IngredientID:       it.IngredientID,
		IngredientPublicID: it.IngredientPublicID,
		Quantity:           it.Quantity,
		Note:               it.Note,
		CreatedByUserID:    it.CreatedByUserID,
		CreatedAt:          it.CreatedAt,
		UpdatedByUserID:    it.UpdatedByUserID,
		UpdatedAt:          it.UpdatedAt,
	}
}

// NewItemInput describes an item to attach to a daily header.
type NewItemInput struct {
	IngredientPublicID uuid.UUID
	Quantity           decimal.Decimal
	Note               string
}

// CreateDailyInput opens a daily header, optionally with items.
type CreateDailyInput struct {
	StockDate *time.Time
	Note      string
	ActorID   int64
	Items     []NewItemInput
}

// AddItemInput attaches one item to an existing header.
type AddItemInput struct {
	NewItemInput
	ActorID int64
}

// UpdateDailyInput edits the header note.
type UpdateDailyInput struct {
	Note    *string
	ActorID int64
}

// UpdateItemInput edits an item; nil fields are left unchanged.
type UpdateItemInput struct {
	Quantity *decimal.Decimal
	Note     *string
	ActorID  int64
}

var (
	// ErrDailyNotFound indicates a missing daily header.
	ErrDailyNotFound = httpx.NewError(httpx.ErrNotFound, "stock: daily not found")
	// ErrItemNotFound indicates a missing daily item.
	ErrItemNotFound = httpx.NewError(httpx.ErrNotFound, "stock: item not found")
	// ErrHistoryNotFound indicates a missing history header.
	ErrHistoryNotFound = httpx.NewError(httpx.ErrNotFound, "stock: history not found")
	// ErrNotToday rejects edits to entries whose business day has passed.
	ErrNotToday = httpx.NewError(httpx.ErrInvariant, "stock: entries can only be added, changed or removed on their own business day")
	// ErrInvalidQuantity rejects zero or negative quantities.
	ErrInvalidQuantity = httpx.NewError(httpx.ErrValidation, "stock: quantity must be greater than zero")
	// ErrInvalidRange rejects date ranges that end before they start.
	ErrInvalidRange = httpx.NewError(httpx.ErrValidation, "stock: from must not be after to")
)
