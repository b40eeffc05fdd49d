// Package dialect defines the Dialect port (spec.md §6): the seam that
// isolates every database-specific SQL string from the rest of Storm. It
// generalizes the teacher repository's dialect.go from a closed three-case
// switch into an interface with concrete sqlite/postgres/mysql
// implementations underneath, adding the lock-hint and identifier-escaping
// concerns the query/exec layers need that the teacher's narrower
// placeholder+upsert abstraction didn't cover.
package dialect

import (
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// LockMode mirrors query.LockMode without importing package query, which
// would create a cycle (query renders through a Dialect's escaping rules).
type LockMode int

const (
	LockNone LockMode = iota
	LockForShare
	LockForUpdate
)

// Dialect abstracts the SQL differences between backing databases: Storm's
// Query Builder, Write Planner and Execution Engine all render through one,
// rather than special-casing database names inline.
type Dialect interface {
	// Name identifies the dialect for logging, metrics and driver
	// selection ("sqlite3", "postgres", "mysql").
	Name() string

	// PlaceholderFormat returns the parameter placeholder style squirrel
	// should render with (sq.Question or sq.Dollar).
	PlaceholderFormat() sq.PlaceholderFormat

	// Quote escapes a single identifier (table or column name) for safe
	// inclusion in generated SQL.
	Quote(identifier string) string

	// UpsertClause renders the trailing clause of an INSERT that should
	// become an UPDATE on conflict with conflictCols, setting updateCols
	// from the proposed row. An empty updateCols yields a "do nothing on
	// conflict" clause where the dialect supports one.
	UpsertClause(tableName string, conflictCols []string, updateCols []string) string

	// LockClause renders the row-lock hint appended to a SELECT (spec.md
	// §4.4's ForShare/ForUpdate), or "" for LockNone or an unsupported mode.
	LockClause(mode LockMode) string

	// JSONExtract renders a SQL fragment extracting the value stored at
	// path within column, a JSON/JSONB document column. The result type is
	// dialect-specific (PostgreSQL's ->> yields text, SQLite's
	// json_extract yields a SQL value).
	JSONExtract(column, path string) (sql string, args []any)

	// JSONPathEq renders a predicate fragment comparing the value at path
	// within column to value. value is marshaled to its JSON
	// representation before comparison, so a Go string compares against a
	// JSON string and a Go int against a JSON number.
	JSONPathEq(column, path string, value any) (sql string, args []any)

	// JSONContains renders a predicate fragment testing whether column's
	// JSON document contains value. An empty path tests the whole
	// document; a non-empty path scopes the test to the value at that
	// path.
	JSONContains(column, path string, value any) (sql string, args []any)
}

// MarshalJSONValue encodes value to its JSON text representation for
// embedding as a bind parameter in a JSONPathEq/JSONContains comparison. A
// value that fails to marshal (a channel, a func) falls back to its
// fmt.Sprint form rather than panicking or erroring a query build that
// can't otherwise fail.
func MarshalJSONValue(value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(b)
}

// buildOnConflictUpsert renders "ON CONFLICT (...) DO UPDATE SET ..." (or
// DO NOTHING), the Upsert syntax shared by PostgreSQL and SQLite, varying
// only in the proposed-row table alias case (EXCLUDED vs. excluded).
func buildOnConflictUpsert(conflictCols, updateCols []string, excludedPrefix string) string {
	if len(conflictCols) == 0 {
		return ""
	}
	conflictTarget := join(conflictCols, ", ")
	if len(updateCols) == 0 {
		return "ON CONFLICT (" + conflictTarget + ") DO NOTHING"
	}
	clause := "ON CONFLICT (" + conflictTarget + ") DO UPDATE SET "
	updates := make([]string, len(updateCols))
	for i, col := range updateCols {
		updates[i] = col + "=" + excludedPrefix + "." + col
	}
	return clause + join(updates, ", ")
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
