package report

import (
	"bufio"
	"encoding/csv"
	"io"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

// WriteCSV streams sheets as CSV. Sheets after the first are separated by a
// blank line and introduced by a "# name" line.
func WriteCSV(w io.Writer, sheets ...Sheet) error {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true

	pending := 0
	flush := func() error {
		writer.Flush()
		if err := writer.Error(); err != nil {
			return err
		}
		pending = 0
		return buf.Flush()
	}
	write := func(row []string) error {
		if err := writer.Write(row); err != nil {
			return err
		}
		pending++
		if pending >= csvFlushEvery {
			return flush()
		}
		return nil
	}

	for i, sheet := range sheets {
		if len(sheets) > 1 {
			if i > 0 {
				if err := flush(); err != nil {
					return err
				}
				if _, err := buf.WriteString("\r\n"); err != nil {
					return err
				}
			}
			if err := flush(); err != nil {
				return err
			}
			if _, err := buf.WriteString("# " + sheet.Name + "\r\n"); err != nil {
				return err
			}
		}
		if len(sheet.Headers) > 0 {
			if err := write(sheet.Headers); err != nil {
				return err
			}
		}
		for _, values := range sheet.Rows {
			row := make([]string, len(values))
			for j, v := range values {
				row[j] = cellText(v)
			}
			if err := write(row); err != nil {
				return err
			}
		}
	}
	return flush()
}
