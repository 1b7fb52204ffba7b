package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"panel-journey-audit/internal/aggregate"
	"panel-journey-audit/internal/category"
	"panel-journey-audit/internal/config"
	"panel-journey-audit/internal/journey"
	"panel-journey-audit/internal/logging"
	"panel-journey-audit/internal/metrics"
	"panel-journey-audit/internal/sqlsource"
	"panel-journey-audit/internal/table"
)

type runOptions struct {
	WidePath  string
	PanelPath string
	AsOf      string
	JSONPath  string
}

func executeRun(ctx context.Context, cfg *config.Config, opts runOptions, stdout io.Writer) error {
	started := time.Now()
	asOf, err := parseAsOf(opts.AsOf, started)
	if err != nil {
		return err
	}
	universe, err := aggregate.ParseUniverse(cfg.Run.Universe)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	runID := uuid.New()
	logger = logger.With(slog.String("run_id", runID.String()))
	logger.InfoContext(ctx, "Starting run", slog.String("as_of", asOf.Format("2006-01-02")))

	wide, wideSource, err := loadInput(ctx, cfg, "wide", opts.WidePath, cfg.Source.WideQuery, cfg.Columns.WideSheet)
	if err != nil {
		return err
	}
	membership, panelSource, err := loadInput(ctx, cfg, "panel", opts.PanelPath, cfg.Source.PanelQuery, cfg.Columns.PanelSheet)
	if err != nil {
		return err
	}
	logWarnings(ctx, logger, wide)
	logWarnings(ctx, logger, membership)

	result, err := journey.Run(ctx, wide, membership, journey.Options{
		IDColumn:        cfg.Columns.ID,
		QuarterMarker:   cfg.Columns.QuarterMarker,
		QuarterColumns:  cfg.Columns.Quarters,
		DetectQuarters:  cfg.Columns.DetectQuarters,
		InclusionColumn: cfg.Columns.Inclusion,
		ExclusionColumn: cfg.Columns.Exclusion,
		AsOf:            asOf,
		Workers:         cfg.Run.Workers,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	selected := make([]category.Label, 0, len(cfg.Run.Categories))
	for _, c := range cfg.Run.Categories {
		selected = append(selected, category.Normalize(c))
	}
	flows := aggregate.Flows(result.Transitions, universe, selected)

	outputs, err := writeOutputs(cfg.Output, []table.Table{
		journey.LongitudinalTable(result.Longitudinal),
		journey.CoverageTable(result.Coverage),
		journey.TransitionTable(result.Transitions),
		journey.FlowTable(flows),
		journey.EvolutionTable(result.Evolution),
	})
	if err != nil {
		return err
	}

	report := buildReport(runID.String(), result, flows, universe)
	report.Inputs = ReportInputs{Wide: wideSource, Panel: panelSource}
	report.Outputs = outputs
	report.Warnings = append(append([]table.Warning{}, wide.Warnings...), membership.Warnings...)

	printReport(stdout, report)

	if opts.JSONPath != "" {
		if err := writeJSON(report, opts.JSONPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "\nJSON report saved to %s\n", opts.JSONPath)
	}

	if cfg.Output.MetricsFile != "" {
		if err := writeMetrics(cfg.Output.MetricsFile, runID.String(), result, flows, time.Since(started)); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Metrics saved to %s\n", cfg.Output.MetricsFile)
	}

	logger.InfoContext(ctx, "Run finished", slog.Duration("duration", time.Since(started)))
	return nil
}

func executeReshape(ctx context.Context, cfg *config.Config, widePath, out string, stdout io.Writer) error {
	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	wide, source, err := loadInput(ctx, cfg, "wide", widePath, cfg.Source.WideQuery, cfg.Columns.WideSheet)
	if err != nil {
		return err
	}
	logWarnings(ctx, logger, wide)

	records, err := journey.Reshape(wide, journey.Options{
		IDColumn:       cfg.Columns.ID,
		QuarterMarker:  cfg.Columns.QuarterMarker,
		QuarterColumns: cfg.Columns.Quarters,
		DetectQuarters: cfg.Columns.DetectQuarters,
	})
	if err != nil {
		return err
	}
	if err := table.WriteFile(out, journey.ReshapeTable(records)); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Reshaped wide table",
		slog.String("source", source),
		slog.Int("rows", wide.Len()),
		slog.Int("long_rows", len(records)))
	fmt.Fprintf(stdout, "Long table (%d rows) saved to %s\n", len(records), out)
	return nil
}

// loadInput reads a table from path when given, otherwise from the
// configured SQL source. It returns the table and a description of where it
// came from.
func loadInput(ctx context.Context, cfg *config.Config, name, path, query, sheet string) (table.Table, string, error) {
	switch {
	case path != "":
		t, err := table.ReadFile(path, table.ReadOptions{Sheet: sheet})
		if err != nil {
			return table.Table{}, "", fmt.Errorf("failed to read %s table: %w", name, err)
		}
		return t, path, nil
	case query != "":
		if cfg.Source.Driver == "" || cfg.Source.DSN == "" {
			return table.Table{}, "", fmt.Errorf("--%s-query needs --driver and --dsn", name)
		}
		t, err := sqlsource.Load(ctx, cfg.Source.Driver, cfg.Source.DSN, name, query)
		if err != nil {
			return table.Table{}, "", fmt.Errorf("failed to load %s table: %w", name, err)
		}
		return t, cfg.Source.Driver + ":" + query, nil
	default:
		return table.Table{}, "", errors.New("--" + name + " or --" + name + "-query is required")
	}
}

func logWarnings(ctx context.Context, logger *slog.Logger, t table.Table) {
	if len(t.Warnings) == 0 {
		return
	}
	logger.WarnContext(ctx, "Irregular rows in input",
		slog.String("table", t.Name),
		slog.Int("rows", len(t.Warnings)),
		slog.String("first", t.Warnings[0].Message))
}

func writeOutputs(cfg config.OutputConfig, tables []table.Table) ([]string, error) {
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(cfg.Dir, t.Name+"."+cfg.Format)
		if err := table.WriteFile(path, t); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", t.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeMetrics(path, runID string, result *journey.Result, flows []aggregate.FlowRow, d time.Duration) error {
	run := metrics.NewRun(runID)
	run.SetRows("longitudinal", len(result.Longitudinal))
	run.SetRows("longitudinal_panel", result.Stats.PanelRecords)
	run.SetRows("coverage", len(result.Coverage))
	run.SetRows("transitions", len(result.Transitions))
	run.SetRows("flows", len(flows))
	run.SetRows("membership_dropped", result.Stats.Membership.Rows-result.Stats.Membership.Loaded)
	if len(result.Periods) > 0 {
		latest := result.Periods[len(result.Periods)-1]
		for _, row := range result.Coverage {
			if row.Period == latest {
				run.SetCoverage(row.Period.String(), string(row.Category), aggregate.Round1(row.Pct))
			}
		}
	}
	run.Finish(d, time.Now())
	if err := run.WriteFile(path); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
