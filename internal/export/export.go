// Package export renders record projections as CSV files
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// DateLayout is how timestamps are rendered in exported files
const DateLayout = "Jan 2, 2006"

// ContentType is the media type of exported files
const ContentType = "text/csv; charset=utf-8"

// Column is one exported field
type Column[T any] struct {
	Header string
	Value  func(T) string
}

// Write encodes a header row followed by one row per record.
// Fields containing commas, quotes or newlines are quoted.
func Write[T any](w io.Writer, columns []Column[T], rows []T) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Header
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			record[i] = c.Value(row)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FileName returns the download name for an export of entity taken at t
func FileName(entity string, t time.Time) string {
	return fmt.Sprintf("%s_export_%s.csv", entity, t.Format(time.DateOnly))
}

// FormatDate renders t with DateLayout, or an empty string for the zero time
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
