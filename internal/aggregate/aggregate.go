// Package aggregate summarises the longitudinal table into per-quarter
// coverage and quarter-to-quarter category transitions.
package aggregate

import (
	"math"
	"sort"

	"panel-journey-audit/internal/category"
	"panel-journey-audit/internal/quarter"
)

// Record is one longitudinal row: an entity's category in a quarter and
// whether it was a panel member then.
type Record struct {
	EntityID string
	Period   quarter.Period
	Category category.Label
	InPanel  bool
}

// CoverageRow counts the entities of a category in a quarter.
type CoverageRow struct {
	Period   quarter.Period `json:"quarter"`
	Category category.Label `json:"category"`
	Total    int            `json:"total_count"`
	Panel    int            `json:"panel_count"`
	Pct      float64        `json:"coverage_pct"`
}

type cell struct {
	period   quarter.Period
	category category.Label
}

// Coverage groups records by (quarter, category). Pct is Panel/Total*100,
// or 0 for an empty group. Rows are ordered by quarter, then category order.
func Coverage(records []Record) []CoverageRow {
	groups := map[cell]*CoverageRow{}
	for _, r := range records {
		key := cell{r.Period, r.Category}
		row, ok := groups[key]
		if !ok {
			row = &CoverageRow{Period: r.Period, Category: r.Category}
			groups[key] = row
		}
		row.Total++
		if r.InPanel {
			row.Panel++
		}
	}

	rows := make([]CoverageRow, 0, len(groups))
	for _, row := range groups {
		row.Pct = percent(row.Panel, row.Total)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Period.Compare(rows[j].Period); c != 0 {
			return c < 0
		}
		return category.Compare(rows[i].Category, rows[j].Category) < 0
	})
	return rows
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Round1 rounds to one decimal place for display.
func Round1(value float64) float64 {
	return math.Round(value*10) / 10
}

// Periods returns the distinct quarters of records in ascending order.
func Periods(records []Record) []quarter.Period {
	seen := map[quarter.Period]struct{}{}
	var periods []quarter.Period
	for _, r := range records {
		if _, ok := seen[r.Period]; ok {
			continue
		}
		seen[r.Period] = struct{}{}
		periods = append(periods, r.Period)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })
	return periods
}

// MissingPeriods returns the calendar quarters strictly between the first
// and last of the ascending periods that are not among them. Transitions
// skip over these quarters.
func MissingPeriods(periods []quarter.Period) []quarter.Period {
	var missing []quarter.Period
	for i := 1; i < len(periods); i++ {
		for p := periods[i-1].Next(); p.Before(periods[i]); p = p.Next() {
			missing = append(missing, p)
		}
	}
	return missing
}

// Categories returns the distinct categories of records in display order.
func Categories(records []Record) []category.Label {
	labels := make([]category.Label, 0, len(records))
	for _, r := range records {
		labels = append(labels, r.Category)
	}
	return category.Ordered(labels)
}
