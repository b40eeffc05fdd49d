package query

import (
	"github.com/storm-repo/storm-framework-sub012/dialect"
	"github.com/storm-repo/storm-framework-sub012/metamodel"
	"github.com/storm-repo/storm-framework-sub012/template"
)

// PredicateBuilder builds template.Expression trees against a resolved
// query graph, offering and/or combinators and the full operator set named
// in spec.md §4.4: {=, <>, <, <=, >, >=, LIKE, NOT LIKE, IN, NOT IN,
// BETWEEN, IS NULL, IS NOT NULL, IS TRUE, IS FALSE}.
type PredicateBuilder struct {
	graph *metamodel.Graph
	err   error
}

// On returns a PredicateBuilder resolving Fields against g.
func On(g *metamodel.Graph) *PredicateBuilder { return &PredicateBuilder{graph: g} }

func (p *PredicateBuilder) column(f metamodel.Field) template.Column {
	alias, col, err := p.graph.Resolve(f, metamodel.CASCADE)
	if err != nil && p.err == nil {
		p.err = err
	}
	return template.Column{Table: alias, Name: col}
}

func (p *PredicateBuilder) Eq(f metamodel.Field, v any) template.Expression { return template.Eq{Column: p.column(f), Value: v} }

// EqCol builds a column-to-column equality, the JOIN ON predicate shape
// (e.g. user.id = order.user_id) as opposed to Eq's column-to-value shape.
func (p *PredicateBuilder) EqCol(left, right metamodel.Field) template.Expression {
	return template.EqCol{Left: p.column(left), Right: p.column(right)}
}
func (p *PredicateBuilder) Neq(f metamodel.Field, v any) template.Expression {
	return template.Neq{Column: p.column(f), Value: v}
}
func (p *PredicateBuilder) Gt(f metamodel.Field, v any) template.Expression {
	return template.Gt{Column: p.column(f), Value: v}
}
func (p *PredicateBuilder) Gte(f metamodel.Field, v any) template.Expression {
	return template.Gte{Column: p.column(f), Value: v}
}
func (p *PredicateBuilder) Lt(f metamodel.Field, v any) template.Expression {
	return template.Lt{Column: p.column(f), Value: v}
}
func (p *PredicateBuilder) Lte(f metamodel.Field, v any) template.Expression {
	return template.Lte{Column: p.column(f), Value: v}
}
func (p *PredicateBuilder) Like(f metamodel.Field, v string) template.Expression {
	return template.Like{Column: p.column(f), Value: v}
}
func (p *PredicateBuilder) NotLike(f metamodel.Field, v string) template.Expression {
	return template.NotLike{Column: p.column(f), Value: v}
}
func (p *PredicateBuilder) IsNull(f metamodel.Field) template.Expression {
	return template.IsNull{Column: p.column(f)}
}
func (p *PredicateBuilder) IsNotNull(f metamodel.Field) template.Expression {
	return template.IsNotNull{Column: p.column(f)}
}
func (p *PredicateBuilder) IsTrue(f metamodel.Field) template.Expression {
	return template.IsTrue{Column: p.column(f)}
}
func (p *PredicateBuilder) IsFalse(f metamodel.Field) template.Expression {
	return template.IsFalse{Column: p.column(f)}
}

// In renders the empty-set rule IN(∅)->1<>1 via template.In.
func (p *PredicateBuilder) In(f metamodel.Field, values ...any) template.Expression {
	return template.In{Column: p.column(f), Values: values}
}

// NotIn renders the empty-set rule NOT IN(∅)->1=1 via template.NotIn.
func (p *PredicateBuilder) NotIn(f metamodel.Field, values ...any) template.Expression {
	return template.NotIn{Column: p.column(f), Values: values}
}

func (p *PredicateBuilder) Between(f metamodel.Field, min, max any) template.Expression {
	return template.Between{Column: p.column(f), Min: min, Max: max}
}

// InExpr renders "column IN (subquery)", the correlated-set counterpart to
// In: sub is typically a SelectFrom query narrowed to a single column via
// Select. A malformed subquery renders as the always-false "1 = 0" rather
// than surfacing a second error path through Expression's no-error Build.
func (p *PredicateBuilder) InExpr(f metamodel.Field, sub *Query) template.Expression {
	sqlStr, args, err := sub.ToSQL()
	if err != nil {
		return template.Raw{SQL: "1 = 0"}
	}
	return template.InSubquery{Column: p.column(f), SQL: sqlStr, Args: args}
}

// NotInExpr renders "column NOT IN (subquery)"; see InExpr.
func (p *PredicateBuilder) NotInExpr(f metamodel.Field, sub *Query) template.Expression {
	sqlStr, args, err := sub.ToSQL()
	if err != nil {
		return template.Raw{SQL: "1 = 1"}
	}
	return template.NotInSubquery{Column: p.column(f), SQL: sqlStr, Args: args}
}

// JSONPathEq builds a predicate comparing the value at path within f's JSON
// column to v, rendered through d so the comparison uses each database's
// native JSON-path operators rather than a portable but slower
// extract-then-compare-in-Go round trip. f must resolve to a column storing
// a JSON/JSONB document.
func (p *PredicateBuilder) JSONPathEq(d dialect.Dialect, f metamodel.Field, path string, v any) template.Expression {
	col := p.column(f)
	sql, args := d.JSONPathEq(col.String(), path, v)
	return template.Raw{SQL: sql, Args: args}
}

// JSONContains builds a predicate testing whether the JSON document at f
// contains v, optionally scoped to path ("" tests the whole document).
func (p *PredicateBuilder) JSONContains(d dialect.Dialect, f metamodel.Field, path string, v any) template.Expression {
	col := p.column(f)
	sql, args := d.JSONContains(col.String(), path, v)
	return template.Raw{SQL: sql, Args: args}
}

func (p *PredicateBuilder) And(exprs ...template.Expression) template.Expression { return template.And(exprs) }
func (p *PredicateBuilder) Or(exprs ...template.Expression) template.Expression  { return template.Or(exprs) }
func (p *PredicateBuilder) Not(e template.Expression) template.Expression        { return template.Not{Expr: e} }

// Err returns the first resolution error encountered while building
// predicates through this builder (e.g. an ambiguous or unknown field).
func (p *PredicateBuilder) Err() error { return p.err }
