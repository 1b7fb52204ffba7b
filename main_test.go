package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"panel-journey-audit/internal/aggregate"
	"panel-journey-audit/internal/config"
	"panel-journey-audit/internal/quarter"
	"panel-journey-audit/internal/table"
)

const (
	wideCSV = "CRM LINK,TRIM MOV 03/23,TRIM MOV 06/23\n" +
		"1,1,2\n" +
		"2,2,2\n" +
		"3,,1\n"
	panelCSV = "CRM LINK,DT_INCLUSAO,DT_INATIVACAO\n" +
		"1,01/01/2023,\n" +
		"2,01/01/2023,31/03/2023\n"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Logging.Level = "error"
	return cfg
}

func TestExecuteRunWritesOutputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.MetricsFile = filepath.Join(cfg.Output.Dir, "metrics", "panel_journey.prom")
	jsonPath := filepath.Join(cfg.Output.Dir, "report.json")

	var stdout bytes.Buffer
	err := executeRun(context.Background(), cfg, runOptions{
		WidePath:  writeTempFile(t, "wide.csv", wideCSV),
		PanelPath: writeTempFile(t, "painel.csv", panelCSV),
		AsOf:      "2025-06-30",
		JSONPath:  jsonPath,
	}, &stdout)
	if err != nil {
		t.Fatalf("execute run: %v", err)
	}

	coverage, err := table.ReadFile(filepath.Join(cfg.Output.Dir, "coverage.csv"), table.ReadOptions{})
	if err != nil {
		t.Fatalf("read coverage: %v", err)
	}
	want := [][]string{
		{"2023Q1", "1", "1", "1", "100.0"},
		{"2023Q1", "2", "1", "1", "100.0"},
		{"2023Q1", "SEM CAT", "1", "0", "0.0"},
		{"2023Q2", "1", "1", "0", "0.0"},
		{"2023Q2", "2", "2", "1", "50.0"},
	}
	if len(coverage.Rows) != len(want) {
		t.Fatalf("expected %d coverage rows, got %d: %v", len(want), len(coverage.Rows), coverage.Rows)
	}
	for i := range want {
		if strings.Join(coverage.Rows[i], ",") != strings.Join(want[i], ",") {
			t.Fatalf("coverage row %d: expected %v, got %v", i, want[i], coverage.Rows[i])
		}
	}

	for _, name := range []string{"longitudinal", "transitions", "flows", "evolution"} {
		if _, err := os.Stat(filepath.Join(cfg.Output.Dir, name+".csv")); err != nil {
			t.Fatalf("expected %s output: %v", name, err)
		}
	}

	transitions, err := table.ReadFile(filepath.Join(cfg.Output.Dir, "transitions.csv"), table.ReadOptions{})
	if err != nil {
		t.Fatalf("read transitions: %v", err)
	}
	if len(transitions.Rows) != 3 {
		t.Fatalf("expected 3 transition rows, got %d", len(transitions.Rows))
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var report struct {
		RunID    string   `json:"run_id"`
		AsOf     string   `json:"as_of"`
		Quarters []string `json:"quarters"`
		Stats    struct {
			Records      int `json:"longitudinal_rows"`
			PanelRecords int `json:"panel_rows"`
			NoCategory   int `json:"no_category_rows"`
		} `json:"stats"`
		TopFlows []json.RawMessage `json:"top_flows"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if report.RunID == "" {
		t.Fatalf("expected run id in report")
	}
	if report.AsOf != "2025-06-30" {
		t.Fatalf("expected as_of 2025-06-30, got %s", report.AsOf)
	}
	if strings.Join(report.Quarters, ",") != "2023Q1,2023Q2" {
		t.Fatalf("unexpected quarters %v", report.Quarters)
	}
	if report.Stats.Records != 6 || report.Stats.PanelRecords != 3 || report.Stats.NoCategory != 1 {
		t.Fatalf("unexpected stats %+v", report.Stats)
	}
	if len(report.TopFlows) != 2 {
		t.Fatalf("expected 2 category moves, got %d", len(report.TopFlows))
	}

	metricsText, err := os.ReadFile(cfg.Output.MetricsFile)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(metricsText), `table="longitudinal"} 6`) {
		t.Fatalf("metrics missing longitudinal rows:\n%s", metricsText)
	}

	out := stdout.String()
	if !strings.Contains(out, "Panel Journey Audit") || !strings.Contains(out, "2023Q2 | 2 | total 2 | panel 1 | 50.0%") {
		t.Fatalf("unexpected console report:\n%s", out)
	}
}

func TestExecuteRunPanelUniverseXLSX(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Format = "xlsx"
	cfg.Run.Universe = "panel"

	err := executeRun(context.Background(), cfg, runOptions{
		WidePath:  writeTempFile(t, "wide.csv", wideCSV),
		PanelPath: writeTempFile(t, "painel.csv", panelCSV),
		AsOf:      "2025-06-30",
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("execute run: %v", err)
	}

	flows, err := table.ReadFile(filepath.Join(cfg.Output.Dir, "flows.xlsx"), table.ReadOptions{})
	if err != nil {
		t.Fatalf("read flows: %v", err)
	}
	if len(flows.Rows) != 1 {
		t.Fatalf("expected 1 panel flow, got %v", flows.Rows)
	}
	if got := strings.Join(flows.Rows[0], ","); got != "2023Q1,2023Q2,1,2,1" {
		t.Fatalf("unexpected panel flow %s", got)
	}
}

func TestExecuteRunFromSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "panel.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE painel (crm_link TEXT, dt_inclusao TEXT, dt_inativacao TEXT);
		INSERT INTO painel VALUES ('1', '2023-01-01', NULL), ('2', '2023-01-01', '2023-03-31');
	`)
	if err != nil {
		t.Fatalf("seed sqlite: %v", err)
	}
	db.Close()

	cfg := testConfig(t)
	cfg.Source.Driver = "sqlite3"
	cfg.Source.DSN = dbPath
	cfg.Source.PanelQuery = "painel"

	var stdout bytes.Buffer
	err = executeRun(context.Background(), cfg, runOptions{
		WidePath: writeTempFile(t, "wide.csv", wideCSV),
		AsOf:     "2025-06-30",
	}, &stdout)
	if err != nil {
		t.Fatalf("execute run: %v", err)
	}
	if !strings.Contains(stdout.String(), "sqlite3:painel") {
		t.Fatalf("expected sql source in report:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "Membership rows: 2 | Loaded: 2 | Open-ended: 1 | Entities: 2") {
		t.Fatalf("unexpected membership summary:\n%s", stdout.String())
	}
}

func TestExecuteRunErrors(t *testing.T) {
	cfg := testConfig(t)
	wide := writeTempFile(t, "wide.csv", wideCSV)

	err := executeRun(context.Background(), cfg, runOptions{
		WidePath:  wide,
		PanelPath: writeTempFile(t, "painel.csv", "CRM LINK,DT_SAIDA\n1,01/01/2023\n"),
		AsOf:      "2025-06-30",
	}, &bytes.Buffer{})
	if !errors.Is(err, table.ErrMissingColumn) {
		t.Fatalf("expected missing column error, got %v", err)
	}

	err = executeRun(context.Background(), cfg, runOptions{
		WidePath:  writeTempFile(t, "bad.csv", "CRM LINK,TRIM MOV 03/23,TRIM MOV 13/23\n1,1,2\n"),
		PanelPath: writeTempFile(t, "painel.csv", panelCSV),
		AsOf:      "2025-06-30",
	}, &bytes.Buffer{})
	if !errors.Is(err, quarter.ErrMalformedLabel) {
		t.Fatalf("expected malformed label error, got %v", err)
	}

	err = executeRun(context.Background(), testConfig(t), runOptions{WidePath: wide}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "--panel") {
		t.Fatalf("expected missing panel input error, got %v", err)
	}

	err = executeRun(context.Background(), testConfig(t), runOptions{WidePath: wide, PanelPath: wide, AsOf: "someday"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "--as-of") {
		t.Fatalf("expected as-of error, got %v", err)
	}
}

func TestParseAsOf(t *testing.T) {
	now := time.Date(2025, 6, 30, 17, 45, 0, 0, time.UTC)

	got, err := parseAsOf("", now)
	if err != nil {
		t.Fatalf("default as-of: %v", err)
	}
	if !got.Equal(time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected today at midnight, got %s", got)
	}

	got, err = parseAsOf("15/03/2024", now)
	if err != nil {
		t.Fatalf("day-first as-of: %v", err)
	}
	if got.Format("2006-01-02") != "2024-03-15" {
		t.Fatalf("expected 2024-03-15, got %s", got.Format("2006-01-02"))
	}
}

func TestExecuteReshape(t *testing.T) {
	cfg := testConfig(t)
	out := filepath.Join(cfg.Output.Dir, "long.csv")

	var stdout bytes.Buffer
	if err := executeReshape(context.Background(), cfg, writeTempFile(t, "wide.csv", wideCSV), out, &stdout); err != nil {
		t.Fatalf("execute reshape: %v", err)
	}

	long, err := table.ReadFile(out, table.ReadOptions{})
	if err != nil {
		t.Fatalf("read long table: %v", err)
	}
	if len(long.Rows) != 6 {
		t.Fatalf("expected 6 long rows, got %d", len(long.Rows))
	}
	if got := strings.Join(long.Rows[2], ","); got != "2,2023Q1,2" {
		t.Fatalf("unexpected third row %s", got)
	}
	if got := strings.Join(long.Rows[4], ","); got != "3,2023Q1,SEM CAT" {
		t.Fatalf("unexpected fifth row %s", got)
	}
}

func TestReshapeCommandDetectQuarters(t *testing.T) {
	wide := writeTempFile(t, "wide.csv", "CRM LINK,2023-T1,notes,2023-T2\n1,1,x,2\n")
	out := filepath.Join(t.TempDir(), "long.csv")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"reshape", "--wide", wide, "--out", out, "--log-level", "error"})
	if err := cmd.Execute(); !errors.Is(err, quarter.ErrMalformedLabel) {
		t.Fatalf("expected unmarked headers to fail by default, got %v", err)
	}

	cmd = newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"reshape", "--wide", wide, "--out", out, "--log-level", "error", "--detect-quarters"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("reshape with detection: %v", err)
	}
	long, err := table.ReadFile(out, table.ReadOptions{})
	if err != nil {
		t.Fatalf("read long table: %v", err)
	}
	if len(long.Rows) != 2 {
		t.Fatalf("expected 2 long rows, got %v", long.Rows)
	}
}

func TestQuarterCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"quarter", "2023-T1", "TRIM MOV 06/24"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("quarter command: %v", err)
	}
	want := "2023-T1\t2023Q1\t2023-01-01\t2023-03-31\n" +
		"TRIM MOV 06/24\t2024Q2\t2024-04-01\t2024-06-30\n"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}

	cmd = newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"quarter", "2023-T9"})
	if err := cmd.Execute(); !errors.Is(err, quarter.ErrMalformedLabel) {
		t.Fatalf("expected malformed label error, got %v", err)
	}
}

func TestRunCommandFlags(t *testing.T) {
	outDir := t.TempDir()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"run",
		"--wide", writeTempFile(t, "wide.csv", wideCSV),
		"--panel", writeTempFile(t, "painel.csv", panelCSV),
		"--as-of", "2025-06-30",
		"--out-dir", outDir,
		"--log-level", "error",
		"--workers", "2",
		"--categories", "1,2",
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("run command: %v", err)
	}

	flows, err := table.ReadFile(filepath.Join(outDir, "flows.csv"), table.ReadOptions{})
	if err != nil {
		t.Fatalf("read flows: %v", err)
	}
	if len(flows.Rows) != 2 {
		t.Fatalf("expected category filter to keep 2 flows, got %v", flows.Rows)
	}

	cmd = newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--wide", "w.csv", "--panel", "p.csv", "--workers", "0"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected invalid workers to fail validation")
	}
}

func TestTopFlows(t *testing.T) {
	q1 := quarter.Period{Year: 2023, Quarter: 1}
	q2 := quarter.Period{Year: 2023, Quarter: 2}
	flows := []aggregate.FlowRow{
		{Source: q1, Target: q2, CategorySource: "1", CategoryTarget: "1", Count: 50},
		{Source: q1, Target: q2, CategorySource: "1", CategoryTarget: "2", Count: 3},
		{Source: q1, Target: q2, CategorySource: "2", CategoryTarget: "1", Count: 7},
		{Source: q1, Target: q2, CategorySource: "2", CategoryTarget: "3", Count: 1},
	}
	top := topFlows(flows, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 flows, got %d", len(top))
	}
	if top[0].Count != 7 || top[1].Count != 3 {
		t.Fatalf("unexpected order %+v", top)
	}
}
