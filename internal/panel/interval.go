// Package panel loads panel enrollment intervals and resolves whether an
// entity was an active panel member during a quarter.
package panel

import (
	"time"

	"panel-journey-audit/internal/quarter"
	"panel-journey-audit/internal/table"
)

// Default column names of the panel export.
const (
	DefaultInclusionColumn = "DT_INCLUSAO"
	DefaultExclusionColumn = "DT_INATIVACAO"
)

// Interval is one enrollment span. A nil Exclusion means the entity is
// still enrolled.
type Interval struct {
	EntityID  string
	Inclusion time.Time
	Exclusion *time.Time
}

// Open reports whether the interval has no exclusion date.
func (i Interval) Open() bool {
	return i.Exclusion == nil
}

// Columns names the membership table columns.
type Columns struct {
	ID        string
	Inclusion string
	Exclusion string
}

// LoadStats counts what happened to membership rows during loading.
type LoadStats struct {
	Rows               int `json:"rows"`
	Loaded             int `json:"loaded"`
	OpenEnded          int `json:"open_ended"`
	MissingID          int `json:"missing_id"`
	Unusable           int `json:"unusable"`
	Inverted           int `json:"inverted"`
	MalformedExclusion int `json:"malformed_exclusion"`
}

// LoadIntervals reads enrollment intervals from t. Dates are parsed
// day-first; malformed values become null. A null inclusion date makes the
// row unusable, a null exclusion date leaves the interval open, and rows
// whose inclusion is after their exclusion are dropped. Missing id or
// inclusion columns fail the load; a missing exclusion column means every
// interval is open.
func LoadIntervals(t table.Table, cols Columns) ([]Interval, LoadStats, error) {
	var stats LoadStats

	idIdx, err := t.RequireColumn(cols.ID)
	if err != nil {
		return nil, stats, err
	}
	inIdx, err := t.RequireColumn(cols.Inclusion)
	if err != nil {
		return nil, stats, err
	}
	outIdx, _ := t.Column(cols.Exclusion)

	intervals := make([]Interval, 0, t.Len())
	for _, row := range t.Rows {
		stats.Rows++

		id := table.CleanID(table.Value(row, idIdx))
		if id == "" {
			stats.MissingID++
			continue
		}
		inclusion, err := quarter.ParseDate(table.Value(row, inIdx))
		if err != nil {
			stats.Unusable++
			continue
		}

		interval := Interval{EntityID: id, Inclusion: inclusion}
		if raw := table.Value(row, outIdx); raw != "" {
			exclusion, err := quarter.ParseDate(raw)
			if err != nil {
				stats.MalformedExclusion++
			} else {
				interval.Exclusion = &exclusion
			}
		}
		if interval.Exclusion != nil && interval.Exclusion.Before(interval.Inclusion) {
			stats.Inverted++
			continue
		}
		if interval.Open() {
			stats.OpenEnded++
		}
		stats.Loaded++
		intervals = append(intervals, interval)
	}
	return intervals, stats, nil
}
