// Package settings stores operator-tunable knobs in the system_settings
// key/value table: the fallback low-stock threshold and the close-day schedule.
package settings

import (
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
)

// Setting keys persisted in system_settings.
const (
	KeyLowStockThreshold = "default_low_stock_threshold"
	KeyCloseDayCron      = "close_day_cron"
	KeyCloseDayTimezone  = "close_day_timezone"
)

// DefaultCloseDayCron fires the close at 00:05 every day.
const DefaultCloseDayCron = "5 0 * * *"

// Settings is the resolved view of every known key.
type Settings struct {
	LowStockThreshold decimal.Decimal `json:"default_low_stock_threshold"`
	CloseDayCron      string          `json:"close_day_cron"`
	CloseDayTimezone  string          `json:"close_day_timezone"`
}

// Schedule describes when the close-day task fires.
type Schedule struct {
	Cron     string `json:"close_day_cron"`
	Timezone string `json:"close_day_timezone"`
}

// Cronspec renders the schedule with an explicit timezone prefix.
func (s Schedule) Cronspec() string {
	if s.Timezone == "" {
		return s.Cron
	}
	return "CRON_TZ=" + s.Timezone + " " + s.Cron
}

var (
	// ErrInvalidThreshold is returned for negative thresholds.
	ErrInvalidThreshold = httpx.NewError(httpx.ErrValidation, "settings: low stock threshold must not be negative")
	// ErrTimezoneFixed is returned when a caller tries to move the schedule off the business timezone.
	ErrTimezoneFixed = httpx.NewError(httpx.ErrValidation, "settings: close-day timezone is fixed to the business timezone")
)
