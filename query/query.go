// Package query implements the Query Builder (C4): a fluent composer over
// joins, predicates, grouping, ordering and pagination. Internally it lowers
// to a github.com/Masterminds/squirrel builder for whitespace- and
// placeholder-format-correct rendering, the way the teacher repository's
// query.go does; predicates are expressed with template.Expression so the
// same Eq/In/And/Or vocabulary used by the Template Engine (C3) for ad-hoc
// TemplateString WHERE clauses is reused here, rather than inventing a
// second predicate language.
package query

import (
	"reflect"

	sq "github.com/Masterminds/squirrel"
	"github.com/storm-repo/storm-framework-sub012/metamodel"
	"github.com/storm-repo/storm-framework-sub012/model"
	"github.com/storm-repo/storm-framework-sub012/template"
)

// sqlizer adapts a template.Expression to squirrel's Sqlizer interface.
type sqlizer struct{ e template.Expression }

func (s sqlizer) ToSql() (string, []any, error) {
	sqlStr, args := s.e.Build()
	return sqlStr, args, nil
}

func asSqlizer(e template.Expression) sq.Sqlizer { return sqlizer{e} }

// LockMode selects a row-lock hint for SELECT.
type LockMode int

const (
	LockNone LockMode = iota
	LockForShare
	LockForUpdate
)

// trashedMode governs whether a soft-deleted row is implicitly excluded
// from SELECT results, the teacher's WithTrashed/OnlyTrashed query modifiers
// generalized to any Model declaring a SoftDelete column.
type trashedMode int

const (
	trashedExclude trashedMode = iota // default: deleted_at IS NULL (or equivalent)
	trashedInclude                    // WithTrashed: no implicit filter
	trashedOnly                       // OnlyTrashed: deleted_at IS NOT NULL
)

// Query is an immutable builder: every fluent method returns a new Query
// value, matching the teacher's copy-on-Where pattern (see
// repository_immutability_test.go) generalized to every clause.
type Query struct {
	registry  *model.Registry
	mainType  reflect.Type
	mainModel *model.Model
	alias     string
	graph     *metamodel.Graph

	sel     sq.SelectBuilder
	isDel   bool
	del     sq.DeleteBuilder
	lock    LockMode
	trashed trashedMode
	built   bool
	err     error
}

// SelectFrom starts a SELECT query rooted at t, with its own columns only
// (spec.md §4.4's selectFrom). Use Select to choose a different column
// mode.
func SelectFrom(reg *model.Registry, t reflect.Type) *Query {
	m, err := reg.ModelOf(t)
	q := &Query{registry: reg, mainType: t, mainModel: m, err: err}
	if err != nil {
		return q
	}
	alias := tableAlias(m.Table.Name)
	q.alias = alias
	q.graph = metamodel.NewGraph(t, alias)
	q.sel = sq.Select(qualifiedColumns(m, alias)...).From(m.Table.Name + " " + alias)
	return q
}

// DeleteFromQ starts a DELETE query rooted at t.
func DeleteFromQ(reg *model.Registry, t reflect.Type) *Query {
	m, err := reg.ModelOf(t)
	q := &Query{registry: reg, mainType: t, mainModel: m, isDel: true, err: err}
	if err != nil {
		return q
	}
	alias := tableAlias(m.Table.Name)
	q.alias = alias
	q.graph = metamodel.NewGraph(t, alias)
	q.del = sq.Delete(m.Table.Name + " " + alias)
	return q
}

func tableAlias(tableName string) string {
	return template.AliasForTableName(tableName)
}

func qualifiedColumns(m *model.Model, alias string) []string {
	cols := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		cols[i] = alias + "." + c.Name
	}
	return cols
}

func (q *Query) clone() *Query {
	c := *q
	return &c
}

// Select overrides the column list with a Metamodel-driven projection of
// individual fields (spec.md §4.4's select(selectType)).
func (q *Query) Select(cols ...metamodel.Field) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	names := make([]string, len(cols))
	for i, f := range cols {
		alias, col, err := q.graph.Resolve(f, metamodel.CASCADE)
		if err != nil {
			c.err = err
			return c
		}
		names[i] = alias + "." + col
	}
	c.sel = sq.Select(names...).From(q.mainModel.Table.Name + " " + q.alias)
	return c
}

type joinKind int

const (
	joinInner joinKind = iota
	joinLeft
	joinRight
	joinCross
)

func (q *Query) join(kind joinKind, t reflect.Type, on template.Expression) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	m, err := q.registry.ModelOf(t)
	if err != nil {
		c.err = err
		return c
	}
	alias := tableAlias(m.Table.Name)
	c.graph = q.graph.Clone()
	c.graph.Join(t, alias)
	target := m.Table.Name + " " + alias
	if kind == joinCross {
		c.sel = c.sel.CrossJoin(target)
		return c
	}
	onSQL, onArgs := on.Build()
	joined := target + " ON " + onSQL
	switch kind {
	case joinInner:
		c.sel = c.sel.Join(joined, onArgs...)
	case joinLeft:
		c.sel = c.sel.LeftJoin(joined, onArgs...)
	case joinRight:
		c.sel = c.sel.RightJoin(joined, onArgs...)
	}
	return c
}

func (q *Query) InnerJoin(t reflect.Type, on template.Expression) *Query { return q.join(joinInner, t, on) }
func (q *Query) LeftJoin(t reflect.Type, on template.Expression) *Query  { return q.join(joinLeft, t, on) }
func (q *Query) RightJoin(t reflect.Type, on template.Expression) *Query { return q.join(joinRight, t, on) }
func (q *Query) CrossJoin(t reflect.Type) *Query                         { return q.join(joinCross, t, nil) }

// Where appends a predicate (AND-combined with any existing WHERE).
func (q *Query) Where(pred template.Expression) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	if c.isDel {
		c.del = c.del.Where(asSqlizer(pred))
	} else {
		c.sel = c.sel.Where(asSqlizer(pred))
	}
	return c
}

func (q *Query) GroupBy(cols ...string) *Query {
	c := q.clone()
	c.sel = c.sel.GroupBy(cols...)
	return c
}

func (q *Query) Having(pred template.Expression) *Query {
	c := q.clone()
	c.sel = c.sel.Having(asSqlizer(pred))
	return c
}

func (q *Query) OrderBy(col string, desc bool) *Query {
	c := q.clone()
	if desc {
		c.sel = c.sel.OrderBy(col + " DESC")
	} else {
		c.sel = c.sel.OrderBy(col)
	}
	return c
}

func (q *Query) Limit(n uint64) *Query {
	c := q.clone()
	c.sel = c.sel.Limit(n)
	return c
}

func (q *Query) Offset(n uint64) *Query {
	c := q.clone()
	c.sel = c.sel.Offset(n)
	return c
}

// Distinct adds DISTINCT to the SELECT clause.
func (q *Query) Distinct() *Query {
	c := q.clone()
	c.sel = c.sel.Distinct()
	return c
}

// WithTrashed includes soft-deleted rows in the result, suppressing the
// implicit deleted_at-is-live predicate SelectFrom would otherwise apply.
// A no-op on a model without a SoftDelete column.
func (q *Query) WithTrashed() *Query {
	c := q.clone()
	c.trashed = trashedInclude
	return c
}

// OnlyTrashed restricts the result to soft-deleted rows only.
func (q *Query) OnlyTrashed() *Query {
	c := q.clone()
	c.trashed = trashedOnly
	return c
}

// softDeleteFilter returns the implicit soft-delete predicate for q's
// current trashedMode, or nil if none applies (hard-delete model, or
// WithTrashed already lifted it).
func (q *Query) softDeleteFilter() template.Expression {
	if q.mainModel == nil || q.mainModel.SoftDelete == nil {
		return nil
	}
	col := template.Column{Table: q.alias, Name: q.mainModel.SoftDelete.Name}
	switch q.trashed {
	case trashedOnly:
		return template.IsNotNull{Column: col}
	case trashedInclude:
		return nil
	default:
		return template.IsNull{Column: col}
	}
}

func (q *Query) selectWithImplicitFilters() sq.SelectBuilder {
	sel := q.sel
	if f := q.softDeleteFilter(); f != nil {
		sel = sel.Where(asSqlizer(f))
	}
	return sel
}

func (q *Query) ForShare() *Query {
	c := q.clone()
	c.lock = LockForShare
	return c
}

func (q *Query) ForUpdate() *Query {
	c := q.clone()
	c.lock = LockForUpdate
	return c
}

// LockMode returns the row-lock mode set by ForShare/ForUpdate; the lock
// hint itself is rendered by a Dialect-aware caller (see storm/exec), since
// lock-hint placement is dialect-specific (spec.md §6's Dialect port).
func (q *Query) LockMode() LockMode { return q.lock }

// ToSQL renders the query with squirrel's default (?-style) placeholder
// format; callers needing $N-style placeholders re-render through
// PlaceholderFormat.
func (q *Query) ToSQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	if q.isDel {
		return q.del.ToSql()
	}
	return q.selectWithImplicitFilters().ToSql()
}

// PlaceholderFormat returns the query's SQL lowered to a specific
// placeholder format (sq.Question or sq.Dollar), for a Postgres dialect.
func (q *Query) PlaceholderFormat(f sq.PlaceholderFormat) (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	if q.isDel {
		return q.del.PlaceholderFormat(f).ToSql()
	}
	return q.selectWithImplicitFilters().PlaceholderFormat(f).ToSql()
}

// Err returns the first error recorded while building the query (e.g. an
// unknown Model type), deferred so fluent chains don't need per-call error
// checks.
func (q *Query) Err() error { return q.err }

// Model returns the Model the query is rooted at.
func (q *Query) Model() *model.Model { return q.mainModel }

// Predicates returns a PredicateBuilder resolving metamodel.Field tokens
// against this query's current join graph.
func (q *Query) Predicates() *PredicateBuilder { return On(q.graph) }

// Alias returns the main table's assigned alias.
func (q *Query) Alias() string { return q.alias }

// Exists builds an EXISTS(sub) predicate from a correlated subquery, the
// typed replacement for the teacher's clause.ExistsExpr: sub is typically a
// SelectFrom query with a Where referencing the outer query's alias via
// Predicates().Eq(metamodel.Of(...)) against an OUTER-scoped field.
func Exists(sub *Query) template.Expression {
	sqlStr, args, err := sub.ToSQL()
	if err != nil {
		return template.Raw{SQL: "1 = 0"}
	}
	return template.Exists{SQL: sqlStr, Args: args}
}

// NotExists builds a NOT EXISTS(sub) predicate; see Exists.
func NotExists(sub *Query) template.Expression {
	sqlStr, args, err := sub.ToSQL()
	if err != nil {
		return template.Raw{SQL: "1 = 1"}
	}
	return template.NotExists{SQL: sqlStr, Args: args}
}
