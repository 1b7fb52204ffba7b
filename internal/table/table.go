// Package table holds the column-addressed tabular boundary of the pipeline
// and reads and writes it as CSV or XLSX files.
package table

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrMissingColumn is matched by every MissingColumnError.
var ErrMissingColumn = errors.New("missing required column")

// MissingColumnError names the absent column and the table it was looked up in.
type MissingColumnError struct {
	Table  string
	Column string
}

func (e *MissingColumnError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("missing required column %q", e.Column)
	}
	return fmt.Sprintf("%s: missing required column %q", e.Table, e.Column)
}

func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}

const blankRowSkipped = "blank row skipped"

// Warning is a non-fatal issue found while reading a file.
type Warning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Table is an in-memory table addressed by column name. Every row has
// exactly len(Headers) cells.
type Table struct {
	Name     string
	Headers  []string
	Rows     [][]string
	Warnings []Warning

	index map[string]int
}

// New builds a table, padding or truncating rows to the header width.
func New(name string, headers []string, rows [][]string) Table {
	t := Table{Name: name, Headers: headers, Rows: make([][]string, 0, len(rows))}
	for _, row := range rows {
		t.Rows = append(t.Rows, fitRow(row, len(headers)))
	}
	return t
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Column finds the first of names present in the headers. Names are compared
// after normalisation, so "DT_INATIVAÇÃO", "dt inativacao" and "DtInativacao"
// all match.
func (t *Table) Column(names ...string) (int, bool) {
	if t.index == nil {
		t.index = normalizeHeaders(t.Headers)
	}
	for _, name := range names {
		if idx, ok := t.index[NormalizeHeader(name)]; ok {
			return idx, true
		}
	}
	return -1, false
}

// RequireColumn is Column that fails with a MissingColumnError.
func (t *Table) RequireColumn(names ...string) (int, error) {
	if idx, ok := t.Column(names...); ok {
		return idx, nil
	}
	column := ""
	if len(names) > 0 {
		column = names[0]
	}
	return -1, &MissingColumnError{Table: t.Name, Column: column}
}

// Value returns the trimmed cell at idx, or "" when idx is out of range.
func Value(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func normalizeHeaders(headers []string) map[string]int {
	result := make(map[string]int, len(headers))
	for idx, header := range headers {
		normalized := NormalizeHeader(header)
		if _, exists := result[normalized]; !exists {
			result[normalized] = idx
		}
	}
	return result
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeHeader lower-cases a header, folds accents and drops separators.
func NormalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if folded, _, err := transform.String(accentFolder, value); err == nil {
		value = folded
	}
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}

// CleanID normalises an entity identifier cell. Spreadsheet exports often
// render integer ids as floats ("12345.0"), which would otherwise break joins.
func CleanID(value string) string {
	value = strings.TrimSpace(value)
	if head, tail, ok := strings.Cut(value, "."); ok && head != "" && strings.Trim(tail, "0") == "" && isDigits(head) {
		return head
	}
	return value
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}

func fitRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	fitted := make([]string, width)
	copy(fitted, row)
	return fitted
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
