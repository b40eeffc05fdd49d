// Package sqlite implements the Dialect port for SQLite 3.24+, used with the
// github.com/mattn/go-sqlite3 driver and in the test suite via an in-memory
// database, mirroring the teacher repository's SQLiteDialect.
package sqlite

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/storm-repo/storm-framework-sub012/dialect"
)

// Dialect is SQLite's Dialect implementation: ? placeholders, ON CONFLICT
// upsert syntax with a lowercase "excluded" proposed-row alias, and no
// native row-lock hints (SQLite's file lock is coarser than a row lock, so
// LockClause always returns "").
type Dialect struct{}

var _ dialect.Dialect = Dialect{}

func (Dialect) Name() string                           { return "sqlite3" }
func (Dialect) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }
func (Dialect) Quote(identifier string) string          { return fmt.Sprintf("%q", identifier) }

func (Dialect) UpsertClause(tableName string, conflictCols, updateCols []string) string {
	if len(conflictCols) == 0 {
		return ""
	}
	if len(updateCols) == 0 {
		return "ON CONFLICT (" + strings.Join(conflictCols, ", ") + ") DO NOTHING"
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = c + "=excluded." + c
	}
	return "ON CONFLICT (" + strings.Join(conflictCols, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

func (Dialect) LockClause(mode dialect.LockMode) string { return "" }

func (Dialect) JSONExtract(column, path string) (string, []any) {
	return fmt.Sprintf("json_extract(%s, ?)", column), []any{path}
}

// JSONPathEq decodes the JSON-marshaled value with json_extract(?, '$') so
// both sides of the comparison are SQL values of the same kind.
func (Dialect) JSONPathEq(column, path string, value any) (string, []any) {
	return fmt.Sprintf("json_extract(%s, ?) = json_extract(?, '$')", column), []any{path, dialect.MarshalJSONValue(value)}
}

func (Dialect) JSONContains(column, path string, value any) (string, []any) {
	if path != "" {
		return fmt.Sprintf("json_extract(%s, ?) = json_extract(?, '$')", column), []any{path, dialect.MarshalJSONValue(value)}
	}
	return fmt.Sprintf("json(%s) LIKE ?", column), []any{"%" + fmt.Sprint(value) + "%"}
}
