// Package report renders tabular report output as spreadsheets or CSV.
package report

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Content types served for exports.
const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	CSVContentType  = "text/csv; charset=utf-8"
)

// Sheet is one titled table.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
}

// AddRow appends a row.
func (s *Sheet) AddRow(values ...any) {
	s.Rows = append(s.Rows, values)
}

// cellText renders a cell for text formats.
func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return val.String()
	case time.Time:
		return val.Format("2006-01-02")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
