// Package closeday freezes a business date: it archives the date's daily
// ledgers into history and rewrites the date's snapshot totals, both
// directions in one transaction.
package closeday

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

// Source identifies what triggered a close.
type Source string

const (
	// SourceScheduler marks closes fired by the periodic task.
	SourceScheduler Source = "scheduler"
	// SourceManual marks closes requested through the API.
	SourceManual Source = "manual"
)

// Input selects the date and directions to close.
type Input struct {
	Date       time.Time
	Directions []stock.Direction
	Source     Source
	ActorID    int64
}

// DirectionResult summarises one direction of a close.
type DirectionResult struct {
	Direction       stock.Direction
	Headers         int
	Items           int
	Snapshots       int
	Pruned          int64
	ReplacedHistory int64
	Quantity        decimal.Decimal
}

// Result is returned by a committed close.
type Result struct {
	Success    bool
	Date       time.Time
	Run        int
	ClosedAt   time.Time
	Directions []DirectionResult
}

// Run is the bookkeeping row kept per closed date.
type Run struct {
	StockDate     time.Time
	RunCount      int
	LastSource    Source
	LastActorID   *int64
	FirstClosedAt time.Time
	LastClosedAt  time.Time
	HeadersIn     int
	ItemsIn       int
	SnapshotsIn   int
	HeadersOut    int
	ItemsOut      int
	SnapshotsOut  int
}

// Status reports whether a date has been closed.
type Status struct {
	Date   time.Time
	Closed bool
	Run    *Run
}

// ErrDateRequired rejects closes without a date.
var ErrDateRequired = httpx.NewError(httpx.ErrValidation, "closeday: date is required")
