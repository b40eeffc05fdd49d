// Package postgres implements the Dialect port for PostgreSQL, used with the
// github.com/lib/pq driver, mirroring the teacher repository's
// PostgreSQLDialect.
package postgres

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/storm-repo/storm-framework-sub012/dialect"
)

// Dialect is PostgreSQL's Dialect implementation: $N placeholders, ON
// CONFLICT upsert syntax with an uppercase EXCLUDED proposed-row alias, and
// FOR SHARE / FOR UPDATE row-lock hints.
type Dialect struct{}

var _ dialect.Dialect = Dialect{}

func (Dialect) Name() string                           { return "postgres" }
func (Dialect) PlaceholderFormat() sq.PlaceholderFormat { return sq.Dollar }
func (Dialect) Quote(identifier string) string          { return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"` }

func (Dialect) UpsertClause(tableName string, conflictCols, updateCols []string) string {
	if len(conflictCols) == 0 {
		return ""
	}
	if len(updateCols) == 0 {
		return "ON CONFLICT (" + strings.Join(conflictCols, ", ") + ") DO NOTHING"
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = c + "=EXCLUDED." + c
	}
	return "ON CONFLICT (" + strings.Join(conflictCols, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

func (Dialect) LockClause(mode dialect.LockMode) string {
	switch mode {
	case dialect.LockForShare:
		return "FOR SHARE"
	case dialect.LockForUpdate:
		return "FOR UPDATE"
	default:
		return ""
	}
}

func (Dialect) JSONExtract(column, path string) (string, []any) {
	return column + "->>'" + jsonPathKey(path) + "'", nil
}

func (Dialect) JSONPathEq(column, path string, value any) (string, []any) {
	return column + " #> " + jsonPathArray(path) + " = ?::jsonb", []any{dialect.MarshalJSONValue(value)}
}

func (Dialect) JSONContains(column, path string, value any) (string, []any) {
	if path != "" {
		return column + "->'" + jsonPathKey(path) + "' @> ?::jsonb", []any{dialect.MarshalJSONValue(value)}
	}
	return column + " @> ?::jsonb", []any{dialect.MarshalJSONValue(value)}
}

// jsonPathKey strips a leading "$." or "$" from a dot-path, leaving the
// single top-level key PostgreSQL's ->/->> operators expect.
func jsonPathKey(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	return path
}

// jsonPathArray renders a dot-path as the '{a,b,c}' text-array literal the
// #> operator expects for descending through nested JSON.
func jsonPathArray(path string) string {
	parts := strings.Split(jsonPathKey(path), ".")
	return "'{" + strings.Join(parts, ",") + "}'"
}
