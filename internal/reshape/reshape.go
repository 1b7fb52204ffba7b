// Package reshape turns the wide per-quarter category sheet into one
// observation per (entity, quarter).
package reshape

import (
	"fmt"
	"strings"

	"panel-journey-audit/internal/quarter"
	"panel-journey-audit/internal/table"
)

// DefaultMarker is the substring that identifies quarter columns in the
// registry snapshot export ("TRIM MOV 09/23").
const DefaultMarker = "TRIM MOV"

// Observation is one cell of the wide table: the raw category value of an
// entity in a quarter.
type Observation struct {
	EntityID string
	Period   quarter.Period
	Raw      string
}

// QuarterColumns selects the quarter columns of a wide table. With a marker,
// every header containing it (case-insensitively) is selected. Without one,
// every header except idColumn that parses as a quarter label is selected.
func QuarterColumns(headers []string, idColumn, marker string) []string {
	marker = strings.ToLower(strings.TrimSpace(marker))
	idKey := table.NormalizeHeader(idColumn)

	var columns []string
	for _, header := range headers {
		if table.NormalizeHeader(header) == idKey {
			continue
		}
		if marker != "" {
			if strings.Contains(strings.ToLower(header), marker) {
				columns = append(columns, header)
			}
			continue
		}
		if _, err := quarter.Parse(header); err == nil {
			columns = append(columns, header)
		}
	}
	return columns
}

// Melt unpivots t on idColumn. It emits exactly t.Len()*len(quarterColumns)
// observations in row-major order, keeping blank cells. Every quarter column
// label is parsed before any row is read; a malformed label or two columns
// naming the same quarter fail the whole call.
func Melt(t table.Table, idColumn string, quarterColumns []string) ([]Observation, error) {
	idIdx, err := t.RequireColumn(idColumn)
	if err != nil {
		return nil, err
	}

	type column struct {
		idx    int
		period quarter.Period
	}
	columns := make([]column, 0, len(quarterColumns))
	seen := make(map[quarter.Period]string, len(quarterColumns))
	for _, name := range quarterColumns {
		idx, err := t.RequireColumn(name)
		if err != nil {
			return nil, err
		}
		period, err := quarter.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		if prev, dup := seen[period]; dup {
			return nil, fmt.Errorf("columns %q and %q both map to %s: %w", prev, name, period, quarter.ErrMalformedLabel)
		}
		seen[period] = name
		columns = append(columns, column{idx: idx, period: period})
	}

	observations := make([]Observation, 0, t.Len()*len(columns))
	for _, row := range t.Rows {
		id := table.CleanID(table.Value(row, idIdx))
		for _, c := range columns {
			observations = append(observations, Observation{
				EntityID: id,
				Period:   c.period,
				Raw:      table.Value(row, c.idx),
			})
		}
	}
	return observations, nil
}
