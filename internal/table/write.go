package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// WriteFile writes t as CSV or XLSX, chosen by extension. Parent
// directories are created as needed.
func WriteFile(path string, t Table) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return WriteXLSX(path, t)
	case ".csv", ".txt":
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := WriteCSV(file, t, true); err != nil {
			return err
		}
		return file.Close()
	default:
		return fmt.Errorf("unsupported table format: %s", filepath.Base(path))
	}
}

// WriteCSV writes headers and rows. With bom set a UTF-8 byte order mark is
// written first so spreadsheet tools detect the encoding.
func WriteCSV(w io.Writer, t Table, bom bool) error {
	if bom {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, record := range t.Rows {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes t to a single-sheet workbook named after the table.
func WriteXLSX(path string, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(t.Name)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	if err := sw.SetRow("A1", toCells(t.Headers)); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, record := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(record)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	return f.SaveAs(path)
}

func toCells(record []string) []interface{} {
	cells := make([]interface{}, len(record))
	for i, v := range record {
		cells[i] = v
	}
	return cells
}

// sheetName trims a table name to Excel's sheet-name rules.
func sheetName(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "Sheet1"
	}
	if len([]rune(name)) > 31 {
		name = string([]rune(name)[:31])
	}
	return name
}
