package report

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// Workbook renders sheets into an xlsx document, one worksheet per sheet.
func Workbook(sheets ...Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, errors.New("report: at least one sheet required")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, sheet := range sheets {
		name := sheet.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return nil, fmt.Errorf("report: rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("report: new sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, sheet); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("report: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, name string, sheet Sheet) error {
	row := 1
	if len(sheet.Headers) > 0 {
		header := make([]any, len(sheet.Headers))
		for i, h := range sheet.Headers {
			header[i] = h
		}
		if err := setRow(f, name, row, header); err != nil {
			return err
		}
		row++
	}
	for _, values := range sheet.Rows {
		if err := setRow(f, name, row, values); err != nil {
			return err
		}
		row++
	}
	return nil
}

func setRow(f *excelize.File, name string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = xlsxValue(v)
	}
	if err := f.SetSheetRow(name, cell, &cells); err != nil {
		return fmt.Errorf("report: write row %d of %q: %w", row, name, err)
	}
	return nil
}

// xlsxValue keeps quantities numeric and dates as plain calendar text.
func xlsxValue(v any) any {
	switch val := v.(type) {
	case decimal.Decimal:
		f, _ := val.Float64()
		return f
	case time.Time:
		return val.Format("2006-01-02")
	default:
		return v
	}
}
