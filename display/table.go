package display

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/evalanche/session"
)

// maxCellWidth truncates long cell values in terminal tables
const maxCellWidth = 60

// RecordsTable renders records as a table with a header row of columns
func RecordsTable(columns []string, records []session.Record) (string, error) {
	data := make(pterm.TableData, 0, len(records)+1)
	data = append(data, columns)
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			v, _ := rec.Get(col)
			row[i] = Cell(v)
		}
		data = append(data, row)
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// ListTable renders one value per row under a single header
func ListTable(header string, values []string) (string, error) {
	data := make(pterm.TableData, 0, len(values)+1)
	data = append(data, []string{header})
	for _, v := range values {
		data = append(data, []string{v})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// Table renders rows under header
func Table(header []string, rows [][]string) (string, error) {
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, header)
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// Cell formats one value for a table cell. NULL renders as "NULL".
func Cell(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		s = t
	case []byte:
		s = string(t)
	case float64:
		s = strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		s = t.Format(time.RFC3339)
	default:
		s = fmt.Sprint(t)
	}
	if r := []rune(s); len(r) > maxCellWidth {
		s = string(r[:maxCellWidth-1]) + "…"
	}
	return s
}

// Duration formats d rounded for status lines
func Duration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
