package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"panel-journey-audit/internal/config"
	"panel-journey-audit/internal/quarter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		exitWithError(err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "panel-journey",
		Short: "Panel journey audit",
		Long: `panel-journey reconciles a wide per-quarter category sheet against panel
enrollment intervals and reports coverage and quarter-to-quarter transitions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Optional YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReshapeCmd())
	rootCmd.AddCommand(newQuarterCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile categories against panel membership",
		Long: `Reshape the wide category sheet, resolve panel membership per quarter and
write the longitudinal, coverage, transitions, flows and evolution tables.

Examples:
  panel-journey run --wide categorias.xlsx --panel painel.csv --as-of 2025-06-30
  panel-journey run --wide wide.csv --panel-query painel --driver pgx --json report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return executeRun(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.WidePath, "wide", "", "Path to the wide category sheet (CSV or XLSX)")
	flags.StringVar(&opts.PanelPath, "panel", "", "Path to the panel membership table (CSV or XLSX)")
	flags.StringVar(&opts.AsOf, "as-of", "", "Date closing open membership intervals (YYYY-MM-DD); default today")
	flags.StringVar(&opts.JSONPath, "json", "", "Optional JSON report output path")
	addInputFlags(cmd)
	flags.String("panel-sheet", "", "Worksheet of the panel workbook")
	flags.String("panel-query", "", "Table name or SELECT query for the panel table")
	flags.String("inclusion-column", "", "Membership inclusion date column")
	flags.String("exclusion-column", "", "Membership exclusion date column")
	flags.Int("workers", 0, "Membership resolution workers; default GOMAXPROCS")
	flags.String("universe", "", "Flow universe: market or panel")
	flags.StringSlice("categories", nil, "Restrict flows to these categories")
	flags.String("out-dir", "", "Directory for output tables")
	flags.String("format", "", "Output table format: csv or xlsx")
	flags.String("metrics-file", "", "Optional Prometheus textfile output path")
	return cmd
}

func newReshapeCmd() *cobra.Command {
	var widePath, out string
	cmd := &cobra.Command{
		Use:   "reshape",
		Short: "Reshape the wide category sheet into long form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return executeReshape(cmd.Context(), cfg, widePath, out, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&widePath, "wide", "", "Path to the wide category sheet (CSV or XLSX)")
	flags.StringVar(&out, "out", "long.csv", "Output path (CSV or XLSX)")
	addInputFlags(cmd)
	return cmd
}

func newQuarterCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "quarter LABEL...",
		Short:   "Show the canonical period and interval of quarter labels",
		Example: `  panel-journey quarter 2023-T1 "TRIM MOV 03/23" 2023-09-30`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, label := range args {
				period, err := quarter.Parse(label)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n",
					label,
					period,
					period.Start().Format("2006-01-02"),
					period.End().Format("2006-01-02"),
				)
			}
			return nil
		},
	}
}

func addInputFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("wide-sheet", "", "Worksheet of the wide workbook")
	flags.String("wide-query", "", "Table name or SELECT query for the wide table")
	flags.String("driver", "", "SQL driver for queries: pgx or sqlite3")
	flags.String("dsn", "", "SQL data source name (or DATABASE_URL)")
	flags.String("id-column", "", "Entity id column")
	flags.String("quarter-marker", "", "Substring marking quarter columns (default \"TRIM MOV\")")
	flags.Bool("detect-quarters", false, "Use every header that parses as a quarter instead of the marker")
	flags.StringSlice("quarters", nil, "Explicit quarter column names")
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	stringFlags := map[string]*string{
		"log-level":        &cfg.Logging.Level,
		"id-column":        &cfg.Columns.ID,
		"quarter-marker":   &cfg.Columns.QuarterMarker,
		"inclusion-column": &cfg.Columns.Inclusion,
		"exclusion-column": &cfg.Columns.Exclusion,
		"wide-sheet":       &cfg.Columns.WideSheet,
		"panel-sheet":      &cfg.Columns.PanelSheet,
		"universe":         &cfg.Run.Universe,
		"driver":           &cfg.Source.Driver,
		"dsn":              &cfg.Source.DSN,
		"wide-query":       &cfg.Source.WideQuery,
		"panel-query":      &cfg.Source.PanelQuery,
		"out-dir":          &cfg.Output.Dir,
		"format":           &cfg.Output.Format,
		"metrics-file":     &cfg.Output.MetricsFile,
	}
	for name, dst := range stringFlags {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst = strings.TrimSpace(f.Value.String())
		}
	}
	if flags.Changed("detect-quarters") {
		cfg.Columns.DetectQuarters, _ = flags.GetBool("detect-quarters")
	}
	if flags.Changed("quarters") {
		cfg.Columns.Quarters, _ = flags.GetStringSlice("quarters")
	}
	if flags.Changed("categories") {
		cfg.Run.Categories, _ = flags.GetStringSlice("categories")
	}
	if flags.Changed("workers") {
		cfg.Run.Workers, _ = flags.GetInt("workers")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func parseAsOf(value string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return quarter.DateOnly(now), nil
	}
	parsed, err := quarter.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of date: %w", err)
	}
	return quarter.DateOnly(parsed), nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
