package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-journey-audit/internal/category"
	"panel-journey-audit/internal/panel"
	"panel-journey-audit/internal/table"
)

func setupMembershipDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE painel (
			crm_link TEXT NOT NULL,
			dt_inclusao DATE,
			dt_inativacao DATE,
			peso REAL
		)
	`)
	if err != nil {
		t.Fatalf("failed to create painel table: %v", err)
	}
	_, err = db.Exec(`
		INSERT INTO painel (crm_link, dt_inclusao, dt_inativacao, peso) VALUES
			('A', '2022-01-10', NULL, 1.0),
			('B', '2022-01-01', '2022-06-30', 2.5)
	`)
	if err != nil {
		t.Fatalf("failed to seed painel table: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestStatement(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"painel", "SELECT * FROM painel"},
		{"crm.painel", "SELECT * FROM crm.painel"},
		{"  select id from painel ", "select id from painel"},
		{"WITH x AS (SELECT 1) SELECT * FROM x", "WITH x AS (SELECT 1) SELECT * FROM x"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := Statement(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "DROP TABLE painel", "painel; DELETE FROM painel"} {
		_, err := Statement(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadTable(t *testing.T) {
	db := setupMembershipDB(t, ":memory:")

	got, err := LoadTable(context.Background(), db, "painel", "painel")
	require.NoError(t, err)

	assert.Equal(t, []string{"crm_link", "dt_inclusao", "dt_inativacao", "peso"}, got.Headers)
	assert.Equal(t, [][]string{
		{"A", "2022-01-10", "", "1"},
		{"B", "2022-01-01", "2022-06-30", "2.5"},
	}, got.Rows)
}

func TestLoadTableFeedsIntervals(t *testing.T) {
	db := setupMembershipDB(t, ":memory:")

	got, err := LoadTable(context.Background(), db, "painel", "SELECT crm_link AS \"CRM LINK\", dt_inclusao, dt_inativacao FROM painel")
	require.NoError(t, err)

	intervals, stats, err := panel.LoadIntervals(got, panel.Columns{
		ID:        "CRM LINK",
		Inclusion: panel.DefaultInclusionColumn,
		Exclusion: panel.DefaultExclusionColumn,
	})
	require.NoError(t, err)
	assert.Len(t, intervals, 2)
	assert.Equal(t, 1, stats.OpenEnded)
}

func TestLoadTableMissingTable(t *testing.T) {
	db := setupMembershipDB(t, ":memory:")

	_, err := LoadTable(context.Background(), db, "wide", "categorias")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wide: query failed")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.db")
	setupMembershipDB(t, path)

	got, err := Load(context.Background(), "sqlite3", path, "painel", "painel")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())

	_, err = got.RequireColumn("DT_INCLUSAO")
	assert.NoError(t, err)
	_, err = got.RequireColumn("DT_SAIDA")
	assert.True(t, errors.Is(err, table.ErrMissingColumn))
}

func TestTypedCellsNormalizeAlike(t *testing.T) {
	for _, v := range []any{int64(1), int32(1), float64(1.0), float32(1), "1", "1.0", []byte("1")} {
		assert.Equal(t, category.Label("1"), category.Normalize(formatCell(v)), "value %#v", v)
	}
	assert.Equal(t, category.NoCategory, category.Normalize(formatCell(nil)))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)

	_, err = Open(context.Background(), "sqlite3", " ")
	assert.Error(t, err)
}
