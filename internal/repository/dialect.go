package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/homebase-app/homebase/internal/db"
	"github.com/homebase-app/homebase/internal/model"
)

// dialect hides the JSON-document differences between Postgres (jsonb) and
// SQLite (JSON text + JSON1 functions). Every fragment uses ? placeholders;
// queries are rebound by sqlx before execution.
type dialect interface {
	// jsonParam wraps a placeholder holding a serialized document.
	jsonParam() string
	// mergeExpr returns an expression that shallow-merges patch into column:
	// top-level keys of patch overwrite, others are kept, nested values are
	// replaced wholesale.
	mergeExpr(column string, patch model.Document) (string, []any, error)
	// textEquals returns a predicate comparing the text form of column[key] to a value.
	textEquals(column, key string, value string) (string, []any)
	// containsText returns a case-insensitive substring predicate over the
	// serialized document. pattern is an already escaped LIKE pattern.
	containsText(column, pattern string) (string, []any)
	// upsertColumn names the existing row's column inside ON CONFLICT DO UPDATE.
	upsertColumn(table, column string) string
}

func dialectFor(driverName string) dialect {
	if driverName == db.DriverSQLite {
		return sqliteDialect{}
	}
	return postgresDialect{}
}

type postgresDialect struct{}

func (postgresDialect) jsonParam() string {
	return "CAST(? AS JSONB)"
}

func (postgresDialect) mergeExpr(column string, patch model.Document) (string, []any, error) {
	if len(patch) == 0 {
		return column, nil, nil
	}
	b, err := json.Marshal(patch)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode document: %w", err)
	}
	// jsonb || jsonb is a top-level merge, right side wins.
	return column + " || CAST(? AS JSONB)", []any{string(b)}, nil
}

func (postgresDialect) textEquals(column, key, value string) (string, []any) {
	return column + " ->> CAST(? AS TEXT) = ?", []any{key, value}
}

func (postgresDialect) containsText(column, pattern string) (string, []any) {
	return "CAST(" + column + " AS TEXT) ILIKE ? ESCAPE '\\'", []any{pattern}
}

func (postgresDialect) upsertColumn(table, column string) string {
	return table + "." + column
}

type sqliteDialect struct{}

func (sqliteDialect) jsonParam() string {
	return "json(?)"
}

func (sqliteDialect) mergeExpr(column string, patch model.Document) (string, []any, error) {
	if len(patch) == 0 {
		return column, nil, nil
	}

	// json_patch would deep-merge and drop nulls, so set each top-level key.
	var sb strings.Builder
	sb.WriteString("json_set(")
	sb.WriteString(column)
	args := make([]any, 0, len(patch)*2)
	for _, key := range sortedKeys(patch) {
		path, err := sqlitePath(key)
		if err != nil {
			return "", nil, err
		}
		b, err := json.Marshal(patch[key])
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode document key %q: %w", key, err)
		}
		sb.WriteString(", ?, json(?)")
		args = append(args, path, string(b))
	}
	sb.WriteString(")")
	return sb.String(), args, nil
}

func (sqliteDialect) textEquals(column, key, value string) (string, []any) {
	path := `$."` + key + `"`
	// json_extract yields 1/0 for booleans; normalise to Postgres' ->> text.
	expr := "(CASE json_type(" + column + ", ?) WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' " +
		"ELSE CAST(json_extract(" + column + ", ?) AS TEXT) END) = ?"
	return expr, []any{path, path, value}
}

func (sqliteDialect) containsText(column, pattern string) (string, []any) {
	return db.SQLiteLowerFunc + "(" + column + ") LIKE ? ESCAPE '\\'", []any{pattern}
}

func (sqliteDialect) upsertColumn(_, column string) string {
	return column
}

// sqlitePath builds a JSON path for a top-level key. SQLite's path syntax has
// no escape for a double quote inside a quoted label.
func sqlitePath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "\"\x00") {
		return "", fmt.Errorf("%w: document key %q cannot be merged", ErrInvalidInput, key)
	}
	return `$."` + key + `"`, nil
}
