package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"panel-journey-audit/internal/category"
	"panel-journey-audit/internal/quarter"
)

// TransitionRow counts entities that moved from CategorySource in Source to
// CategoryTarget in Target, split by panel membership in Target.
type TransitionRow struct {
	Source         quarter.Period `json:"quarter_source"`
	Target         quarter.Period `json:"quarter_target"`
	CategorySource category.Label `json:"category_source"`
	CategoryTarget category.Label `json:"category_target"`
	InPanel        bool           `json:"panel_flag"`
	Count          int            `json:"count"`
}

type transitionKey struct {
	source, target quarter.Period
	from, to       category.Label
	inPanel        bool
}

// Transitions pairs each quarter with the next observed quarter (adjacent
// pairs of the sorted distinct quarters only) and joins the two on entity
// id. Entities missing from either quarter of a pair contribute nothing.
// Duplicate ids within a quarter multiply, as in a relational inner join.
// Fewer than two quarters yield an empty result.
func Transitions(records []Record) []TransitionRow {
	byPeriod := map[quarter.Period][]Record{}
	for _, r := range records {
		byPeriod[r.Period] = append(byPeriod[r.Period], r)
	}
	periods := Periods(records)

	counts := map[transitionKey]int{}
	for i := 0; i+1 < len(periods); i++ {
		source, target := periods[i], periods[i+1]

		targets := map[string][]Record{}
		for _, r := range byPeriod[target] {
			targets[r.EntityID] = append(targets[r.EntityID], r)
		}
		for _, from := range byPeriod[source] {
			for _, to := range targets[from.EntityID] {
				counts[transitionKey{source, target, from.Category, to.Category, to.InPanel}]++
			}
		}
	}

	rows := make([]TransitionRow, 0, len(counts))
	for key, count := range counts {
		rows = append(rows, TransitionRow{
			Source:         key.source,
			Target:         key.target,
			CategorySource: key.from,
			CategoryTarget: key.to,
			InPanel:        key.inPanel,
			Count:          count,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := a.Source.Compare(b.Source); c != 0 {
			return c < 0
		}
		if c := category.Compare(a.CategorySource, b.CategorySource); c != 0 {
			return c < 0
		}
		if c := category.Compare(a.CategoryTarget, b.CategoryTarget); c != 0 {
			return c < 0
		}
		return !a.InPanel && b.InPanel
	})
	return rows
}

// Universe selects which entities a flow view counts.
type Universe int

const (
	// UniverseMarket counts every entity, summing over panel membership.
	UniverseMarket Universe = iota
	// UniversePanel counts only entities in the panel in the target quarter.
	UniversePanel
)

// ParseUniverse accepts "market"/"mercado" and "panel"/"painel".
func ParseUniverse(value string) (Universe, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "market", "mercado":
		return UniverseMarket, nil
	case "panel", "painel":
		return UniversePanel, nil
	}
	return UniverseMarket, fmt.Errorf("unknown universe %q (want market or panel)", value)
}

func (u Universe) String() string {
	if u == UniversePanel {
		return "panel"
	}
	return "market"
}

// FlowRow is a transition count without the panel split.
type FlowRow struct {
	Source         quarter.Period `json:"quarter_source"`
	Target         quarter.Period `json:"quarter_target"`
	CategorySource category.Label `json:"category_source"`
	CategoryTarget category.Label `json:"category_target"`
	Count          int            `json:"count"`
}

// Flows derives the flow view of transitions for a universe. When
// categories is non-empty only rows whose source and target categories are
// both selected are kept.
func Flows(rows []TransitionRow, universe Universe, categories []category.Label) []FlowRow {
	selected := map[category.Label]bool{}
	for _, c := range categories {
		selected[c] = true
	}

	type flowKey struct {
		source, target quarter.Period
		from, to       category.Label
	}
	counts := map[flowKey]int{}
	var order []flowKey
	for _, row := range rows {
		if universe == UniversePanel && !row.InPanel {
			continue
		}
		if len(selected) > 0 && (!selected[row.CategorySource] || !selected[row.CategoryTarget]) {
			continue
		}
		key := flowKey{row.Source, row.Target, row.CategorySource, row.CategoryTarget}
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key] += row.Count
	}

	flows := make([]FlowRow, 0, len(order))
	for _, key := range order {
		flows = append(flows, FlowRow{
			Source:         key.source,
			Target:         key.target,
			CategorySource: key.from,
			CategoryTarget: key.to,
			Count:          counts[key],
		})
	}
	return flows
}
