package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"

	"panel-journey-audit/internal/aggregate"
	"panel-journey-audit/internal/category"
	"panel-journey-audit/internal/journey"
	"panel-journey-audit/internal/quarter"
	"panel-journey-audit/internal/table"
)

const defaultTopN = 10

type ReportInputs struct {
	Wide  string `json:"wide"`
	Panel string `json:"panel"`
}

type Report struct {
	RunID          string                  `json:"run_id"`
	AsOf           string                  `json:"as_of"`
	Universe       string                  `json:"universe"`
	Inputs         ReportInputs            `json:"inputs"`
	Stats          journey.Stats           `json:"stats"`
	DurationMS     int64                   `json:"duration_ms"`
	Quarters       []quarter.Period        `json:"quarters"`
	Categories     []category.Label        `json:"categories"`
	Coverage       []aggregate.CoverageRow `json:"coverage"`
	TransitionRows int                     `json:"transition_rows"`
	TopFlows       []aggregate.FlowRow     `json:"top_flows"`
	Outputs        []string                `json:"outputs"`
	Warnings       []table.Warning         `json:"warnings,omitempty"`
}

func buildReport(runID string, result *journey.Result, flows []aggregate.FlowRow, universe aggregate.Universe) Report {
	coverage := make([]aggregate.CoverageRow, len(result.Coverage))
	for i, row := range result.Coverage {
		row.Pct = aggregate.Round1(row.Pct)
		coverage[i] = row
	}

	return Report{
		RunID:          runID,
		AsOf:           result.AsOf.Format("2006-01-02"),
		Universe:       universe.String(),
		Stats:          result.Stats,
		DurationMS:     result.Stats.Duration.Milliseconds(),
		Quarters:       result.Periods,
		Categories:     result.Categories,
		Coverage:       coverage,
		TransitionRows: len(result.Transitions),
		TopFlows:       topFlows(flows, defaultTopN),
	}
}

// topFlows returns the n largest flows that change category.
func topFlows(flows []aggregate.FlowRow, n int) []aggregate.FlowRow {
	moves := make([]aggregate.FlowRow, 0, len(flows))
	for _, f := range flows {
		if f.CategorySource != f.CategoryTarget {
			moves = append(moves, f)
		}
	}
	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].Count > moves[j].Count
	})
	if n > 0 && len(moves) > n {
		moves = moves[:n]
	}
	return moves
}

func printReport(w io.Writer, report Report) {
	title := color.New(color.Bold)
	section := color.New(color.FgCyan)
	warn := color.New(color.FgYellow)

	fmt.Fprintln(w, title.Sprint("Panel Journey Audit"))
	fmt.Fprintln(w, strings.Repeat("=", 38))
	fmt.Fprintf(w, "Run: %s\n", report.RunID)
	fmt.Fprintf(w, "As of: %s\n", report.AsOf)
	fmt.Fprintf(w, "Inputs: %s | %s\n", sourceName(report.Inputs.Wide), sourceName(report.Inputs.Panel))

	stats := report.Stats
	fmt.Fprintf(w, "Wide rows: %d | Quarter columns: %d | Entities: %d\n", stats.WideRows, stats.QuarterColumns, stats.Entities)
	fmt.Fprintf(w, "Longitudinal rows: %d | In panel: %d | No category: %d\n", stats.Records, stats.PanelRecords, stats.NoCategory)
	m := stats.Membership
	fmt.Fprintf(w, "Membership rows: %d | Loaded: %d | Open-ended: %d | Entities: %d\n", m.Rows, m.Loaded, m.OpenEnded, stats.MemberEntities)
	if dropped := m.MissingID + m.Unusable + m.Inverted; dropped > 0 {
		fmt.Fprintln(w, warn.Sprintf("Membership rows dropped: %d (missing id %d, no inclusion date %d, inverted %d)",
			dropped, m.MissingID, m.Unusable, m.Inverted))
	}
	if m.MalformedExclusion > 0 {
		fmt.Fprintln(w, warn.Sprintf("Malformed exclusion dates treated as open: %d", m.MalformedExclusion))
	}
	if n := len(stats.MissingQuarters); n > 0 {
		fmt.Fprintln(w, warn.Sprintf("Quarters without a column: %d (first %s)", n, stats.MissingQuarters[0]))
	}
	if len(report.Warnings) > 0 {
		fmt.Fprintln(w, warn.Sprintf("Irregular input rows: %d", len(report.Warnings)))
	}

	fmt.Fprintln(w, section.Sprint("\nCoverage by quarter"))
	fmt.Fprintln(w, strings.Repeat("-", 38))
	if len(report.Coverage) == 0 {
		fmt.Fprintln(w, "No observations found.")
	}
	for _, row := range report.Coverage {
		fmt.Fprintf(w, "%s | %s | total %d | panel %d | %s\n",
			row.Period,
			row.Category,
			row.Total,
			row.Panel,
			coverageLabel(row.Pct),
		)
	}

	fmt.Fprintln(w, section.Sprintf("\nTop category moves (%s)", report.Universe))
	fmt.Fprintln(w, strings.Repeat("-", 38))
	if len(report.TopFlows) == 0 {
		fmt.Fprintln(w, "No transitions between consecutive quarters.")
	}
	for _, f := range report.TopFlows {
		fmt.Fprintf(w, "%s %s -> %s %s | %d\n", f.Source, f.CategorySource, f.Target, f.CategoryTarget, f.Count)
	}

	if len(report.Outputs) > 0 {
		fmt.Fprintln(w, section.Sprint("\nOutputs"))
		fmt.Fprintln(w, strings.Repeat("-", 38))
		for _, path := range report.Outputs {
			fmt.Fprintln(w, path)
		}
	}
}

func coverageLabel(pct float64) string {
	label := fmt.Sprintf("%.1f%%", pct)
	switch {
	case pct >= 50:
		return color.New(color.FgGreen).Sprint(label)
	case pct > 0:
		return color.New(color.FgYellow).Sprint(label)
	default:
		return color.New(color.FgRed).Sprint(label)
	}
}

func sourceName(source string) string {
	if source == "" {
		return "-"
	}
	if strings.Contains(source, ":") {
		return source
	}
	return filepath.Base(source)
}

func writeJSON(report Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
