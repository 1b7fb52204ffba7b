// Package journey runs the longitudinal reconciliation: reshape the wide
// category sheet, resolve panel membership per quarter, normalise
// categories and aggregate coverage and transitions.
package journey

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"panel-journey-audit/internal/aggregate"
	"panel-journey-audit/internal/category"
	"panel-journey-audit/internal/panel"
	"panel-journey-audit/internal/quarter"
	"panel-journey-audit/internal/reshape"
	"panel-journey-audit/internal/table"
)

// Record is one row of the longitudinal table.
type Record = aggregate.Record

// Options configures a run. AsOf is required: it is the date that closes
// open-ended panel intervals, so results for quarters reaching past it
// depend on the value chosen.
//
// Quarter columns are QuarterColumns when set. Otherwise every header
// containing QuarterMarker (reshape.DefaultMarker when empty) is used, and
// each must parse. DetectQuarters instead selects every header that parses
// as a quarter label, ignoring the marker.
type Options struct {
	IDColumn        string
	QuarterMarker   string
	QuarterColumns  []string
	DetectQuarters  bool
	InclusionColumn string
	ExclusionColumn string
	AsOf            time.Time
	Workers         int
	Logger          *slog.Logger
}

// Stats describes a run.
type Stats struct {
	WideRows       int             `json:"wide_rows"`
	QuarterColumns int             `json:"quarter_columns"`
	Quarters       int             `json:"quarters"`
	Entities       int             `json:"entities"`
	Records        int             `json:"longitudinal_rows"`
	PanelRecords   int             `json:"panel_rows"`
	NoCategory     int             `json:"no_category_rows"`
	PanelEntities  int             `json:"panel_entities"`
	MemberEntities int             `json:"member_entities"`
	Membership     panel.LoadStats `json:"membership"`
	Duration       time.Duration   `json:"-"`

	// MissingQuarters lists the quarters absent between the first and last
	// observed ones.
	MissingQuarters []quarter.Period `json:"missing_quarters,omitempty"`
}

// Result holds the output tables of a run.
type Result struct {
	AsOf         time.Time
	Longitudinal []Record
	Coverage     []aggregate.CoverageRow
	Transitions  []aggregate.TransitionRow
	Evolution    []aggregate.EvolutionRow
	Periods      []quarter.Period
	Categories   []category.Label
	Stats        Stats
}

func (o Options) withDefaults() Options {
	if o.IDColumn == "" {
		o.IDColumn = "CRM LINK"
	}
	if o.QuarterMarker == "" {
		o.QuarterMarker = reshape.DefaultMarker
	}
	if o.InclusionColumn == "" {
		o.InclusionColumn = panel.DefaultInclusionColumn
	}
	if o.ExclusionColumn == "" {
		o.ExclusionColumn = panel.DefaultExclusionColumn
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Reshape melts the wide table and normalises categories, without panel
// resolution. InPanel is false on every record.
func Reshape(wide table.Table, opts Options) ([]Record, error) {
	opts = opts.withDefaults()
	observations, _, err := melt(wide, opts)
	if err != nil {
		return nil, err
	}
	records := make([]Record, len(observations))
	for i, o := range observations {
		records[i] = Record{EntityID: o.EntityID, Period: o.Period, Category: category.Normalize(o.Raw)}
	}
	return records, nil
}

func melt(wide table.Table, opts Options) ([]reshape.Observation, int, error) {
	columns := opts.QuarterColumns
	if len(columns) == 0 {
		marker := opts.QuarterMarker
		if opts.DetectQuarters {
			marker = ""
		}
		columns = reshape.QuarterColumns(wide.Headers, opts.IDColumn, marker)
	}
	if len(columns) == 0 {
		if _, err := wide.RequireColumn(opts.IDColumn); err != nil {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%s: no quarter columns found: %w", wide.Name, quarter.ErrMalformedLabel)
	}
	observations, err := reshape.Melt(wide, opts.IDColumn, columns)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", wide.Name, err)
	}
	return observations, len(columns), nil
}

// Run reconciles the wide category table against the membership table.
// The output tables depend only on the two inputs and opts.AsOf.
func Run(ctx context.Context, wide, membership table.Table, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.AsOf.IsZero() {
		return nil, errors.New("journey: as-of date is required")
	}
	started := time.Now()
	logger := opts.Logger.With(slog.String("component", "journey"))

	observations, columnCount, err := melt(wide, opts)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Reshaped wide table",
		slog.String("table", wide.Name),
		slog.Int("rows", wide.Len()),
		slog.Int("quarter_columns", columnCount),
		slog.Int("observations", len(observations)))

	intervals, loadStats, err := panel.LoadIntervals(membership, panel.Columns{
		ID:        opts.IDColumn,
		Inclusion: opts.InclusionColumn,
		Exclusion: opts.ExclusionColumn,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", membership.Name, err)
	}
	if dropped := loadStats.Unusable + loadStats.Inverted + loadStats.MissingID; dropped > 0 {
		logger.WarnContext(ctx, "Dropped unusable membership rows",
			slog.Int("missing_id", loadStats.MissingID),
			slog.Int("null_inclusion", loadStats.Unusable),
			slog.Int("inverted", loadStats.Inverted))
	}
	if loadStats.MalformedExclusion > 0 {
		logger.WarnContext(ctx, "Malformed exclusion dates treated as open",
			slog.Int("rows", loadStats.MalformedExclusion))
	}

	index := panel.NewIndex(intervals)
	resolver, err := panel.NewResolver(index, opts.AsOf)
	if err != nil {
		return nil, err
	}
	queries := make([]panel.Query, len(observations))
	for i, o := range observations {
		queries[i] = panel.Query{EntityID: o.EntityID, Period: o.Period}
	}
	membershipFlags, err := resolver.ResolveAll(ctx, queries, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("resolve membership: %w", err)
	}

	records := make([]Record, len(observations))
	entities := map[string]struct{}{}
	panelEntities := map[string]struct{}{}
	stats := Stats{
		WideRows:       wide.Len(),
		QuarterColumns: columnCount,
		MemberEntities: index.Entities(),
		Membership:     loadStats,
	}
	for i, o := range observations {
		rec := Record{
			EntityID: o.EntityID,
			Period:   o.Period,
			Category: category.Normalize(o.Raw),
			InPanel:  membershipFlags[i],
		}
		records[i] = rec
		entities[rec.EntityID] = struct{}{}
		if rec.InPanel {
			stats.PanelRecords++
			panelEntities[rec.EntityID] = struct{}{}
		}
		if rec.Category == category.NoCategory {
			stats.NoCategory++
		}
	}

	result := &Result{
		AsOf:         resolver.AsOf(),
		Longitudinal: records,
		Coverage:     aggregate.Coverage(records),
		Transitions:  aggregate.Transitions(records),
		Evolution:    aggregate.Evolution(records),
		Periods:      aggregate.Periods(records),
		Categories:   aggregate.Categories(records),
	}
	stats.Records = len(records)
	stats.Entities = len(entities)
	stats.PanelEntities = len(panelEntities)
	stats.Quarters = len(result.Periods)
	stats.MissingQuarters = aggregate.MissingPeriods(result.Periods)
	stats.Duration = time.Since(started)
	result.Stats = stats

	if n := len(stats.MissingQuarters); n > 0 {
		logger.WarnContext(ctx, "Observed quarters are not contiguous",
			slog.Int("missing", n),
			slog.String("first_missing", stats.MissingQuarters[0].String()))
	}
	if len(result.Transitions) == 0 {
		logger.WarnContext(ctx, "No transitions between consecutive quarters",
			slog.Int("quarters", stats.Quarters))
	}
	logger.InfoContext(ctx, "Reconciliation complete",
		slog.Int("longitudinal_rows", stats.Records),
		slog.Int("panel_rows", stats.PanelRecords),
		slog.Int("coverage_rows", len(result.Coverage)),
		slog.Int("transition_rows", len(result.Transitions)),
		slog.Duration("duration", stats.Duration))
	return result, nil
}
