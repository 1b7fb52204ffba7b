package aggregate

import (
	"panel-journey-audit/internal/category"
	"panel-journey-audit/internal/quarter"
)

// EvolutionRow counts distinct entities of a category in a quarter.
type EvolutionRow struct {
	Period   quarter.Period `json:"quarter"`
	Category category.Label `json:"category"`
	Market   int            `json:"market_entities"`
	Panel    int            `json:"panel_entities"`
}

// Evolution counts distinct entity ids per (quarter, category), in total and
// among panel members. Every category gets a row for every observed quarter,
// zero-filled, so each category forms a complete series.
func Evolution(records []Record) []EvolutionRow {
	market := map[cell]map[string]struct{}{}
	panel := map[cell]map[string]struct{}{}
	add := func(m map[cell]map[string]struct{}, key cell, id string) {
		set, ok := m[key]
		if !ok {
			set = map[string]struct{}{}
			m[key] = set
		}
		set[id] = struct{}{}
	}
	for _, r := range records {
		key := cell{r.Period, r.Category}
		add(market, key, r.EntityID)
		if r.InPanel {
			add(panel, key, r.EntityID)
		}
	}

	periods := Periods(records)
	categories := Categories(records)
	rows := make([]EvolutionRow, 0, len(periods)*len(categories))
	for _, c := range categories {
		for _, p := range periods {
			key := cell{p, c}
			rows = append(rows, EvolutionRow{
				Period:   p,
				Category: c,
				Market:   len(market[key]),
				Panel:    len(panel[key]),
			})
		}
	}
	return rows
}
