package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadOptions selects what to read from a file.
type ReadOptions struct {
	// Sheet names the xlsx worksheet; the first sheet is used when empty.
	Sheet string
	// Comma forces the CSV delimiter; it is sniffed from the header line when zero.
	Comma rune
}

// ReadFile loads a CSV or XLSX file, chosen by extension.
func ReadFile(path string, opts ReadOptions) (Table, error) {
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, name, opts.Sheet)
	case ".csv", ".txt", ".tsv":
		data, err := os.ReadFile(path)
		if err != nil {
			return Table{}, err
		}
		return ReadCSV(bytes.NewReader(data), name, opts.Comma)
	default:
		return Table{}, fmt.Errorf("unsupported table format: %s", name)
	}
}

// ReadCSV parses delimited text. UTF-8 (with or without BOM) and UTF-16 with
// BOM are decoded as such; anything else that is not valid UTF-8 is treated
// as Windows-1252, the usual encoding of spreadsheet exports.
func ReadCSV(r io.Reader, name string, comma rune) (Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Table{}, err
	}
	data, _, err := DecodeText(raw)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", name, err)
	}
	if comma == 0 {
		comma = sniffDelimiter(data)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, fmt.Errorf("%s: empty file: no header row found", name)
		}
		return Table{}, fmt.Errorf("%s: unable to read header: %w", name, err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	t := Table{Name: name, Headers: headers}
	rowNum := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			t.Warnings = append(t.Warnings, Warning{Row: rowNum, Message: fmt.Sprintf("parse error: %v", err)})
			continue
		}
		if blankRow(record) {
			t.Warnings = append(t.Warnings, Warning{Row: rowNum, Message: blankRowSkipped})
			continue
		}
		if len(record) != len(headers) {
			t.Warnings = append(t.Warnings, Warning{
				Row:     rowNum,
				Message: fmt.Sprintf("row has %d columns, expected %d", len(record), len(headers)),
			})
		}
		t.Rows = append(t.Rows, fitRow(record, len(headers)))
	}
	return t, nil
}

// ReadXLSX loads one worksheet. Cells are read raw, so dates arrive as Excel
// serial day numbers and numbers without display formatting.
func ReadXLSX(path, name, sheet string) (Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Table{}, fmt.Errorf("%s: workbook has no sheets", name)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("%s: failed to read sheet %q: %w", name, sheet, err)
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("%s: empty sheet %q: no header row found", name, sheet)
	}

	headers := rows[0]
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	t := Table{Name: name, Headers: headers}
	for i, row := range rows[1:] {
		if blankRow(row) {
			t.Warnings = append(t.Warnings, Warning{Row: i + 2, Message: blankRowSkipped})
			continue
		}
		t.Rows = append(t.Rows, fitRow(row, len(headers)))
	}
	return t, nil
}

// DecodeText converts raw file bytes to UTF-8 and strips any byte order mark.
// It returns the name of the detected encoding.
func DecodeText(data []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return data[3:], "utf-8-bom", nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		decoder := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		decoded, _, err := transform.Bytes(decoder, data)
		if err != nil {
			return nil, "", fmt.Errorf("UTF-16 decode failed: %w", err)
		}
		return decoded, "utf-16", nil
	case utf8.Valid(data):
		return data, "utf-8", nil
	}
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, "", fmt.Errorf("windows-1252 decode failed: %w", err)
	}
	return decoded, "windows-1252", nil
}

// sniffDelimiter picks ';', '\t' or ',' by frequency in the first line.
func sniffDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, candidate := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(candidate))); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}
