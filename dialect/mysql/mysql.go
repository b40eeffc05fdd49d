// Package mysql implements the Dialect port for MySQL 5.7+, used with the
// github.com/go-sql-driver/mysql driver, mirroring the teacher repository's
// MySQLDialect.
package mysql

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/storm-repo/storm-framework-sub012/dialect"
)

// Dialect is MySQL's Dialect implementation: ? placeholders, ON DUPLICATE
// KEY UPDATE upsert syntax (conflict columns are auto-detected from the
// table's keys, so they're accepted but unused), and FOR UPDATE / LOCK IN
// SHARE MODE row-lock hints.
type Dialect struct{}

var _ dialect.Dialect = Dialect{}

func (Dialect) Name() string                           { return "mysql" }
func (Dialect) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }
func (Dialect) Quote(identifier string) string          { return "`" + strings.ReplaceAll(identifier, "`", "``") + "`" }

func (Dialect) UpsertClause(tableName string, conflictCols, updateCols []string) string {
	if len(updateCols) == 0 {
		return ""
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = c + "=VALUES(" + c + ")"
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (Dialect) LockClause(mode dialect.LockMode) string {
	switch mode {
	case dialect.LockForShare:
		return "LOCK IN SHARE MODE"
	case dialect.LockForUpdate:
		return "FOR UPDATE"
	default:
		return ""
	}
}

func (Dialect) JSONExtract(column, path string) (string, []any) {
	return "JSON_EXTRACT(" + column + ", ?)", []any{path}
}

func (Dialect) JSONPathEq(column, path string, value any) (string, []any) {
	return "JSON_EXTRACT(" + column + ", ?) = ?", []any{path, dialect.MarshalJSONValue(value)}
}

func (Dialect) JSONContains(column, path string, value any) (string, []any) {
	if path != "" {
		return "JSON_CONTAINS(" + column + ", ?, ?)", []any{dialect.MarshalJSONValue(value), path}
	}
	return "JSON_CONTAINS(" + column + ", ?)", []any{dialect.MarshalJSONValue(value)}
}
