// Package export renders listing pages as spreadsheet downloads.
package export

import (
	"database/sql/driver"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fluxbase-eu/tabulate/internal/database")

// Format is a download format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// maxSheetName is the longest worksheet name Excel accepts
const maxSheetName = 31

// ParseFormat parses a download format, defaulting to CSV
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("invalid export format: %s (valid options: csv, xlsx)", s)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns the download name for a resource
func (f Format) Filename(resource string) string {
	return resource + "." + string(f)
}

// Columns returns the union of row keys with "id" first and the rest sorted
func Columns(rows []database.Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		if k != "id" {
			columns = append(columns, k)
		}
	}
	sort.Strings(columns)

	if _, ok := seen["id"]; ok {
		columns = append([]string{"id"}, columns...)
	}
	return columns
}

// Write renders rows in the given format
func Write(w io.Writer, format Format, sheet string, rows []database.Row) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, sheet, rows)
	case FormatCSV:
		return WriteCSV(w, rows)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// WriteCSV renders rows as CSV with a header line
func WriteCSV(w io.Writer, rows []database.Row) error {
	columns := Columns(rows)
	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = cellText(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteXLSX renders rows as a single-sheet workbook with a bold header row
func WriteXLSX(w io.Writer, sheet string, rows []database.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet = sheetName(sheet)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name worksheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open worksheet: %w", err)
	}

	columns := Columns(rows)
	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = excelize.Cell{StyleID: bold, Value: col}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for r, row := range rows {
		cells := make([]interface{}, len(columns))
		for i, col := range columns {
			cells[i] = cellValue(row[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return err
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush worksheet: %w", err)
	}
	_, err = f.WriteTo(w)
	return err
}

// cellValue keeps numbers and booleans native so spreadsheets can sum them
func cellValue(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool, string:
		return v
	default:
		return cellText(v)
	}
}

func cellText(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case driver.Valuer:
		value, err := v.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return cellText(value)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		return "Sheet1"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}
