package shared

import (
	"fmt"
	"time"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
)

// DateLayout is the wire format for business dates.
const DateLayout = "2006-01-02"

// DefaultBusinessTimezone is used when no timezone is configured.
const DefaultBusinessTimezone = "Asia/Ho_Chi_Minh"

// BusinessClock decides what "today" means. Every date comparison in the
// system goes through one clock bound to the configured business timezone.
type BusinessClock struct {
	loc *time.Location
	now func() time.Time
}

// NewBusinessClock builds a clock for loc backed by time.Now.
func NewBusinessClock(loc *time.Location) *BusinessClock {
	if loc == nil {
		loc = time.UTC
	}
	return &BusinessClock{loc: loc, now: time.Now}
}

// LoadBusinessClock resolves the IANA timezone name and builds a clock for it.
func LoadBusinessClock(name string) (*BusinessClock, error) {
	if name == "" {
		name = DefaultBusinessTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("shared: load business timezone %q: %w", name, err)
	}
	return NewBusinessClock(loc), nil
}

// WithNow returns a copy of the clock reading time from now.
func (c *BusinessClock) WithNow(now func() time.Time) *BusinessClock {
	clone := *c
	if now != nil {
		clone.now = now
	}
	return &clone
}

// Location returns the business timezone.
func (c *BusinessClock) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the business timezone.
func (c *BusinessClock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns local midnight of the current business day.
func (c *BusinessClock) Today() time.Time {
	return c.DateOf(c.Now())
}

// Yesterday returns local midnight of the previous business day.
func (c *BusinessClock) Yesterday() time.Time {
	return c.Today().AddDate(0, 0, -1)
}

// DateOf keeps the calendar fields of t and pins them to local midnight.
// Values scanned from DATE columns arrive as UTC midnight and keep their day.
func (c *BusinessClock) DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// IsToday reports whether d falls on the current business day.
func (c *BusinessClock) IsToday(d time.Time) bool {
	return SameDate(d, c.Today())
}

// ParseDate parses a YYYY-MM-DD string into local midnight.
func (c *BusinessClock) ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, httpx.NewError(httpx.ErrValidation, "date is required")
	}
	t, err := time.ParseInLocation(DateLayout, value, c.loc)
	if err != nil {
		return time.Time{}, httpx.NewError(httpx.ErrValidation, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value))
	}
	return t, nil
}

// ParseDateOr parses value, returning fallback when value is empty.
func (c *BusinessClock) ParseDateOr(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return c.DateOf(fallback), nil
	}
	return c.ParseDate(value)
}

// Format renders d as YYYY-MM-DD using its calendar fields.
func (c *BusinessClock) Format(d time.Time) string {
	return FormatDate(d)
}

// SameDate compares calendar fields only.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatDate renders the calendar fields of d as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}
