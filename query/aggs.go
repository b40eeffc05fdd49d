package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/storm-repo/storm-framework-sub012/metamodel"
)

// Aggregate query helpers, kept from the teacher's query_aggs.go as Query
// Builder convenience methods (SPEC_FULL.md F.3): spec.md's Element table
// already has the expressive room (Select mode, Unsafe) to host these
// without a new Element kind, so they are expressed here as thin wrappers
// producing a one-column aggregate SELECT.

func (q *Query) aggregate(fn string, f metamodel.Field) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	alias, col, err := c.graph.Resolve(f, metamodel.CASCADE)
	if err != nil {
		c.err = err
		return c
	}
	expr := fmt.Sprintf("%s(%s.%s)", fn, alias, col)
	c.sel = sq.Select(expr).From(q.mainModel.Table.Name + " " + q.alias)
	return c
}

// Count replaces the column list with COUNT(f).
func (q *Query) Count(f metamodel.Field) *Query { return q.aggregate("COUNT", f) }

// CountAll replaces the column list with COUNT(*).
func (q *Query) CountAll() *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.sel = sq.Select("COUNT(*)").From(q.mainModel.Table.Name + " " + q.alias)
	return c
}

func (q *Query) Sum(f metamodel.Field) *Query { return q.aggregate("SUM", f) }
func (q *Query) Avg(f metamodel.Field) *Query { return q.aggregate("AVG", f) }
func (q *Query) Min(f metamodel.Field) *Query { return q.aggregate("MIN", f) }
func (q *Query) Max(f metamodel.Field) *Query { return q.aggregate("MAX", f) }
