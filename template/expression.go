package template

import (
	"fmt"
	"strings"
)

// Expression is the base interface for all SQL predicate fragments, kept
// byte-for-byte compatible with the teacher's clause.Expression contract:
// Build returns rendered SQL plus its positional argument list, with no
// error return, since every concrete Expression below can always render.
type Expression interface {
	Build() (sql string, args []any)
}

// Column is a resolved (table-qualified) column reference, the leaf that
// every comparison Expression below compares against a value.
type Column struct {
	Table string
	Name  string
}

func (c Column) String() string {
	if c.Table != "" {
		return c.Table + "." + c.Name
	}
	return c.Name
}

type Eq struct {
	Column Column
	Value  any
}

func (e Eq) Build() (string, []any) { return e.Column.String() + " = ?", []any{e.Value} }

type Neq struct {
	Column Column
	Value  any
}

func (e Neq) Build() (string, []any) { return e.Column.String() + " <> ?", []any{e.Value} }

// EqCol compares two resolved columns directly (e.g. a JOIN ON condition),
// rather than a column against a bound value.
type EqCol struct {
	Left, Right Column
}

func (e EqCol) Build() (string, []any) { return e.Left.String() + " = " + e.Right.String(), nil }

// Exists wraps a subquery's rendered SQL in an EXISTS(...) predicate.
type Exists struct {
	SQL  string
	Args []any
}

func (e Exists) Build() (string, []any) { return "EXISTS (" + e.SQL + ")", e.Args }

// NotExists wraps a subquery's rendered SQL in a NOT EXISTS(...) predicate.
type NotExists struct {
	SQL  string
	Args []any
}

func (e NotExists) Build() (string, []any) { return "NOT EXISTS (" + e.SQL + ")", e.Args }

type Gt struct {
	Column Column
	Value  any
}

func (e Gt) Build() (string, []any) { return e.Column.String() + " > ?", []any{e.Value} }

type Gte struct {
	Column Column
	Value  any
}

func (e Gte) Build() (string, []any) { return e.Column.String() + " >= ?", []any{e.Value} }

type Lt struct {
	Column Column
	Value  any
}

func (e Lt) Build() (string, []any) { return e.Column.String() + " < ?", []any{e.Value} }

type Lte struct {
	Column Column
	Value  any
}

func (e Lte) Build() (string, []any) { return e.Column.String() + " <= ?", []any{e.Value} }

type Like struct {
	Column Column
	Value  string
}

func (e Like) Build() (string, []any) { return e.Column.String() + " LIKE ?", []any{e.Value} }

type NotLike struct {
	Column Column
	Value  string
}

func (e NotLike) Build() (string, []any) { return e.Column.String() + " NOT LIKE ?", []any{e.Value} }

type IsNull struct{ Column Column }

func (e IsNull) Build() (string, []any) { return e.Column.String() + " IS NULL", nil }

type IsNotNull struct{ Column Column }

func (e IsNotNull) Build() (string, []any) { return e.Column.String() + " IS NOT NULL", nil }

type IsTrue struct{ Column Column }

func (e IsTrue) Build() (string, []any) { return e.Column.String() + " IS TRUE", nil }

type IsFalse struct{ Column Column }

func (e IsFalse) Build() (string, []any) { return e.Column.String() + " IS FALSE", nil }

// In renders spec.md §4.4's empty-set rule: IN (∅) is always false,
// rendered as the dialect-agnostic literal "1<>1" rather than emitting a
// zero-argument IN(...) a driver's placeholder parser might reject (P7,
// scenario 6).
type In struct {
	Column Column
	Values []any
}

func (e In) Build() (string, []any) {
	if len(e.Values) == 0 {
		return "1<>1", nil
	}
	return fmt.Sprintf("%s IN (%s)", e.Column.String(), placeholders(len(e.Values))), e.Values
}

// NotIn renders NOT IN (∅) as always-true: "1=1" (P7).
type NotIn struct {
	Column Column
	Values []any
}

func (e NotIn) Build() (string, []any) {
	if len(e.Values) == 0 {
		return "1=1", nil
	}
	return fmt.Sprintf("%s NOT IN (%s)", e.Column.String(), placeholders(len(e.Values))), e.Values
}

// InSubquery renders "column IN (subquery)", the correlated-set counterpart
// to In's static value list.
type InSubquery struct {
	Column Column
	SQL    string
	Args   []any
}

func (e InSubquery) Build() (string, []any) {
	return e.Column.String() + " IN (" + e.SQL + ")", e.Args
}

// NotInSubquery renders "column NOT IN (subquery)"; see InSubquery.
type NotInSubquery struct {
	Column Column
	SQL    string
	Args   []any
}

func (e NotInSubquery) Build() (string, []any) {
	return e.Column.String() + " NOT IN (" + e.SQL + ")", e.Args
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}

type Between struct {
	Column   Column
	Min, Max any
}

func (e Between) Build() (string, []any) {
	return e.Column.String() + " BETWEEN ? AND ?", []any{e.Min, e.Max}
}

// And renders an empty conjunction as always-true, matching the teacher's
// clause.And zero-value behaviour.
type And []Expression

func (a And) Build() (string, []any) {
	if len(a) == 0 {
		return "1 = 1", nil
	}
	var sqls []string
	var args []any
	for _, e := range a {
		s, eargs := e.Build()
		sqls = append(sqls, "("+s+")")
		args = append(args, eargs...)
	}
	return strings.Join(sqls, " AND "), args
}

// Or renders an empty disjunction as always-false.
type Or []Expression

func (o Or) Build() (string, []any) {
	if len(o) == 0 {
		return "1 = 0", nil
	}
	var sqls []string
	var args []any
	for _, e := range o {
		s, eargs := e.Build()
		sqls = append(sqls, "("+s+")")
		args = append(args, eargs...)
	}
	return strings.Join(sqls, " OR "), args
}

type Not struct{ Expr Expression }

func (n Not) Build() (string, []any) {
	s, args := n.Expr.Build()
	return "NOT (" + s + ")", args
}

// Raw is an escape hatch for SQL that has no typed Expression form; it
// carries its own bound arguments like the teacher's clause.Expr.
type Raw struct {
	SQL  string
	Args []any
}

func (r Raw) Build() (string, []any) { return r.SQL, r.Args }

// MultiValueIn renders a multi-column tuple membership test. With Native set
// it uses tuple syntax, "(a, b) IN ((?, ?), ...)"; otherwise Build emits the
// OR-of-AND fallback, "(a = ? AND b = ?) OR ...".
type MultiValueIn struct {
	Columns []Column
	Rows    [][]any
	Native  bool
}

func (m MultiValueIn) Build() (string, []any) {
	if len(m.Rows) == 0 {
		return "1<>1", nil
	}
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.String()
	}
	left := "(" + strings.Join(names, ", ") + ")"
	if m.Native {
		rowPH := make([]string, len(m.Rows))
		var args []any
		for i, row := range m.Rows {
			rowPH[i] = "(" + placeholders(len(row)) + ")"
			args = append(args, row...)
		}
		return left + " IN (" + strings.Join(rowPH, ", ") + ")", args
	}
	var ors []string
	var args []any
	for _, row := range m.Rows {
		var ands []string
		for i, v := range row {
			ands = append(ands, names[i]+" = ?")
			args = append(args, v)
		}
		ors = append(ors, "("+strings.Join(ands, " AND ")+")")
	}
	return strings.Join(ors, " OR "), args
}
