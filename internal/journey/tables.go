package journey

import (
	"strconv"

	"panel-journey-audit/internal/aggregate"
	"panel-journey-audit/internal/table"
)

// LongitudinalTable renders records as entity_id, quarter, category, in_panel.
func LongitudinalTable(records []Record) table.Table {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.EntityID, r.Period.String(), string(r.Category), strconv.FormatBool(r.InPanel)})
	}
	return table.New("longitudinal", []string{"entity_id", "quarter", "category", "in_panel"}, rows)
}

// CoverageTable renders coverage rows.
func CoverageTable(rows []aggregate.CoverageRow) table.Table {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Period.String(),
			string(r.Category),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Panel),
			strconv.FormatFloat(aggregate.Round1(r.Pct), 'f', 1, 64),
		})
	}
	return table.New("coverage", []string{"quarter", "category", "total_count", "panel_count", "coverage_pct"}, out)
}

// TransitionTable renders transition rows.
func TransitionTable(rows []aggregate.TransitionRow) table.Table {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Source.String(),
			r.Target.String(),
			string(r.CategorySource),
			string(r.CategoryTarget),
			strconv.FormatBool(r.InPanel),
			strconv.Itoa(r.Count),
		})
	}
	return table.New("transitions", []string{"quarter_source", "quarter_target", "category_source", "category_target", "panel_flag", "count"}, out)
}

// FlowTable renders flow rows.
func FlowTable(rows []aggregate.FlowRow) table.Table {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Source.String(),
			r.Target.String(),
			string(r.CategorySource),
			string(r.CategoryTarget),
			strconv.Itoa(r.Count),
		})
	}
	return table.New("flows", []string{"quarter_source", "quarter_target", "category_source", "category_target", "count"}, out)
}

// EvolutionTable renders evolution rows.
func EvolutionTable(rows []aggregate.EvolutionRow) table.Table {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Period.String(),
			string(r.Category),
			strconv.Itoa(r.Market),
			strconv.Itoa(r.Panel),
		})
	}
	return table.New("evolution", []string{"quarter", "category", "market_entities", "panel_entities"}, out)
}

// ReshapeTable renders records without the membership flag, for output of
// the reshape step alone.
func ReshapeTable(records []Record) table.Table {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.EntityID, r.Period.String(), string(r.Category)})
	}
	return table.New("long", []string{"entity_id", "quarter", "category"}, rows)
}
