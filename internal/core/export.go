package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// WriteAuditCSV writes a session's failed and skipped rows so they can be
// fixed and re-uploaded. Columns are _line, _status, _reason followed by the
// original record columns; general errors have line 0 and no data.
func WriteAuditCSV(w io.Writer, s Session) error {
	columns := auditColumns(s)

	cw := csv.NewWriter(w)
	header := append([]string{"_line", "_status", "_reason"}, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, e := range s.Errors {
		if err := cw.Write(auditRow(e.Row, "failed", e.Error, e.Data, columns)); err != nil {
			return err
		}
	}
	for _, sk := range s.SkippedCompanies {
		if err := cw.Write(auditRow(sk.Row, "skipped", sk.Reason, sk.Data, columns)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func auditRow(line int, status, reason string, data Record, columns []string) []string {
	row := make([]string, 0, len(columns)+3)
	row = append(row, strconv.Itoa(line), status, reason)
	for _, c := range columns {
		row = append(row, data[c])
	}
	return row
}

// auditColumns returns known columns in template order, then any extra
// columns seen in the audit data sorted by name.
func auditColumns(s Session) []string {
	seen := make(map[string]bool)
	collect := func(r Record) {
		for k := range r {
			seen[k] = true
		}
	}
	for _, e := range s.Errors {
		collect(e.Data)
	}
	for _, sk := range s.SkippedCompanies {
		collect(sk.Data)
	}

	cols := make([]string, 0, len(seen))
	for _, c := range Columns {
		if seen[c.Name] {
			cols = append(cols, c.Name)
			delete(seen, c.Name)
		}
	}
	extra := make([]string, 0, len(seen))
	for k := range seen {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// WriteTemplate writes an empty import file with the canonical headers.
func WriteTemplate(w io.Writer, format FileFormat) error {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		header := make([]string, len(Columns))
		for i, c := range Columns {
			header[i] = c.Name
		}
		if err := cw.Write(header); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	case FormatXLSX:
		return writeXLSXTemplate(w)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func writeXLSXTemplate(w io.Writer) error {
	const sheet = "Companies"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, col := range Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col.Name); err != nil {
			return err
		}
		style := headerStyle
		if col.Required {
			style = requiredStyle
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}

		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, name, name, 20); err != nil {
			return err
		}
	}

	const help = "Columns"
	if _, err := f.NewSheet(help); err != nil {
		return err
	}
	for i, h := range []string{"Column", "Required", "Description", "Example", "Also accepted as"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(help, cell, h); err != nil {
			return err
		}
	}
	for i, col := range Columns {
		row := i + 2
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		values := []any{col.Name, required, col.Description, col.Example, strings.Join(col.Aliases, ", ")}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := f.SetCellValue(help, cell, v); err != nil {
				return err
			}
		}
	}

	_, err = f.WriteTo(w)
	return err
}
