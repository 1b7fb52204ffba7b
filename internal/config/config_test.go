package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-journey-audit/internal/reshape"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panel-journey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "CRM LINK", cfg.Columns.ID)
	assert.Equal(t, "TRIM MOV", cfg.Columns.QuarterMarker)
	assert.False(t, cfg.Columns.DetectQuarters)
	assert.Equal(t, "DT_INCLUSAO", cfg.Columns.Inclusion)
	assert.Equal(t, "DT_INATIVACAO", cfg.Columns.Exclusion)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Run.Workers)
	assert.Equal(t, "market", cfg.Run.Universe)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Output)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Empty(t, cfg.Source.DSN)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
columns:
  id: CRM
  quarter_marker: TRIM MOV
run:
  workers: 3
  universe: painel
  categories: ["1", "2"]
logging:
  level: debug
output:
  format: xlsx
`)
	t.Setenv("PANEL_JOURNEY_RUN_WORKERS", "7")
	t.Setenv("PANEL_JOURNEY_COLUMNS_EXCLUSION", "DT_SAIDA")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "CRM", cfg.Columns.ID)
	assert.Equal(t, "TRIM MOV", cfg.Columns.QuarterMarker)
	assert.Equal(t, "DT_SAIDA", cfg.Columns.Exclusion)
	assert.Equal(t, 7, cfg.Run.Workers)
	assert.Equal(t, "painel", cfg.Run.Universe)
	assert.Equal(t, []string{"1", "2"}, cfg.Run.Categories)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "xlsx", cfg.Output.Format)
}

func TestLoadDatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/registry")
	t.Setenv("PANEL_JOURNEY_SOURCE_DRIVER", "pgx")
	t.Setenv("PANEL_JOURNEY_SOURCE_WIDE_QUERY", "SELECT * FROM categorias")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/registry", cfg.Source.DSN)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad level", body: "logging:\n  level: loud\n"},
		{name: "bad format", body: "output:\n  format: parquet\n"},
		{name: "bad universe", body: "run:\n  universe: everyone\n"},
		{name: "unknown key", body: "colums:\n  id: x\n"},
		{name: "bad driver", body: "source:\n  driver: mysql\n"},
		{name: "query without driver", body: "source:\n  wide_query: SELECT 1\n  dsn: file.db\n"},
		{name: "query without dsn", body: "source:\n  driver: sqlite3\n  panel_query: SELECT 1\n"},
		{name: "bad env int", env: map[string]string{"PANEL_JOURNEY_RUN_WORKERS": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "output", cfg.Output.Dir)
	assert.Equal(t, reshape.DefaultMarker, cfg.Columns.QuarterMarker)
}
