// Package sqlsource loads input tables from Postgres or SQLite queries.
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"panel-journey-audit/internal/table"
)

// DefaultTimeout bounds a whole Load call.
const DefaultTimeout = 30 * time.Second

var identifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// Open connects with the given database/sql driver ("pgx" or "sqlite3") and
// pings the server.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "pgx", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported sql driver: %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Statement turns source into a query. A bare table name, optionally
// schema-qualified, becomes SELECT * FROM it; anything else must already be a
// SELECT or WITH statement.
func Statement(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", errors.New("sql source is empty")
	}
	if identifier.MatchString(source) {
		return "SELECT * FROM " + source, nil
	}
	head := strings.ToLower(strings.Fields(source)[0])
	if head != "select" && head != "with" {
		return "", fmt.Errorf("sql source must be a table name or a SELECT query: %s", source)
	}
	return source, nil
}

// Load opens the database, runs source and closes the connection.
func Load(ctx context.Context, driver, dsn, name, source string) (table.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	db, err := Open(ctx, driver, dsn)
	if err != nil {
		return table.Table{}, err
	}
	defer db.Close()

	return LoadTable(ctx, db, name, source)
}

// LoadTable runs source on db and returns the result set as a table, cells
// formatted the way a CSV export of the same data would read.
func LoadTable(ctx context.Context, db *sql.DB, name, source string) (table.Table, error) {
	query, err := Statement(source)
	if err != nil {
		return table.Table{}, err
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return table.Table{}, fmt.Errorf("%s: query failed: %w", name, err)
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return table.Table{}, err
	}

	var records [][]string
	values := make([]any, len(headers))
	dest := make([]any, len(headers))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return table.Table{}, fmt.Errorf("%s: scan row %d: %w", name, len(records)+1, err)
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = formatCell(v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return table.Table{}, fmt.Errorf("%s: %w", name, err)
	}
	return table.New(name, headers, records), nil
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(v)
	}
}
