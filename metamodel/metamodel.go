// Package metamodel implements the Metamodel (C2): a type-safe
// path-to-column resolver, (RootType, dotted-path) -> (Table, Column), with
// scoped alias resolution for subquery correlation.
//
// Grounded on the teacher's relation.go/join_on.go alias bookkeeping, which
// assigns a table alias per join inline in the query builder; here that
// bookkeeping is pulled out into an explicit resolver so it can answer
// "short form" and "ambiguous" queries independently of any one query's
// builder state, as spec.md §4.2 requires.
package metamodel

import (
	"reflect"
	"strings"

	"github.com/storm-repo/storm-framework-sub012/stormerr"
)

// ResolveScope governs whether outer-query aliases participate in
// resolution (subquery correlation).
type ResolveScope int

const (
	// CASCADE resolves against the local graph, falling back to outer scopes.
	CASCADE ResolveScope = iota
	// LOCAL resolves only against the current query's graph.
	LOCAL
	// OUTER resolves only against an enclosing query's graph (correlation).
	OUTER
)

// Field is a logical field location: a compile-time-ish token identifying a
// column reachable from Root by a dotted navigation path. Equality is
// (TableType, Column) — position independent, per spec.md §3.
type Field struct {
	Root      reflect.Type
	TableType reflect.Type
	Path      string // dot-separated navigation from Root, e.g. "owner.address"
	Column    string // leaf column name
	IsColumn  bool
	IsInline  bool
}

// Equal implements spec.md P2: of(T,p).canonical() == of(T,p') iff
// (tableType, field) match, regardless of navigation path taken to reach it.
func (f Field) Equal(other Field) bool {
	return f.TableType == other.TableType && f.Column == other.Column
}

// Of builds a Field token for root, navigating path (e.g. "owner.id").
// The leaf segment is the column name; every other segment is an inline or
// FK navigation hop. Resolution of intermediate hops against a live query's
// join graph happens in Graph.Resolve, not here: Of is a pure token
// constructor so Field values can be compared before any query exists.
func Of(root reflect.Type, tableType reflect.Type, path string) Field {
	segs := strings.Split(path, ".")
	return Field{
		Root:      root,
		TableType: tableType,
		Path:      path,
		Column:    segs[len(segs)-1],
		IsColumn:  true,
	}
}

// Graph tracks the table aliases participating in one query (the "effective
// graph": main table + auto-joins + explicit joins) and resolves Fields
// against it.
type Graph struct {
	main    reflect.Type
	aliases map[reflect.Type][]string // type -> aliases present in this graph, declaration order
	outer   *Graph
}

// NewGraph starts a graph rooted at main's table.
func NewGraph(main reflect.Type, mainAlias string) *Graph {
	g := &Graph{main: main, aliases: make(map[reflect.Type][]string)}
	g.aliases[main] = []string{mainAlias}
	return g
}

// WithOuter returns a copy of g correlated to an enclosing query's graph,
// for subquery resolution under CASCADE/OUTER scopes.
func (g *Graph) WithOuter(outer *Graph) *Graph {
	return &Graph{main: g.main, aliases: g.aliases, outer: outer}
}

// Clone returns an independent copy of g: mutating the clone's alias map
// (via Join) never affects g, which Query's copy-on-write builder methods
// rely on to add a join to one Query value without retroactively mutating
// any Query value it was cloned from.
func (g *Graph) Clone() *Graph {
	aliases := make(map[reflect.Type][]string, len(g.aliases))
	for t, as := range g.aliases {
		cp := make([]string, len(as))
		copy(cp, as)
		aliases[t] = cp
	}
	return &Graph{main: g.main, aliases: aliases, outer: g.outer}
}

// Join registers that t is reachable in this graph under alias.
func (g *Graph) Join(t reflect.Type, alias string) {
	g.aliases[t] = append(g.aliases[t], alias)
}

// AliasOf returns the (first, CASCADE-scoped) alias assigned to t in this
// graph, for rendering a bare alias reference (spec.md §4.3's Alias
// element).
func (g *Graph) AliasOf(t reflect.Type) (string, bool) {
	c := g.candidateAliases(t, CASCADE)
	if len(c) == 0 {
		return "", false
	}
	return c[0], true
}

// Main returns the graph's root type.
func (g *Graph) Main() reflect.Type { return g.main }

// Resolve answers (table alias, column) for field, honoring scope.
//
// 1. Nested path: when field.Path has more than one segment, the caller is
// expected to have already walked the navigation (via Join calls for each
// hop) and field.TableType names the final hop's type; resolution here is
// then identical to the short-form case, since the alias for that specific
// hop is unambiguous by construction (each hop produces exactly one alias).
//
// 2. Short form: field.Path has a single segment. Valid iff t appears
// exactly once in the applicable graph(s) for scope.
func (g *Graph) Resolve(field Field, scope ResolveScope) (alias string, column string, err error) {
	candidates := g.candidateAliases(field.TableType, scope)
	switch len(candidates) {
	case 0:
		return "", "", &stormerr.TemplateError{Reason: "no table alias for " + field.TableType.String() + " in scope"}
	case 1:
		return candidates[0], field.Column, nil
	default:
		return "", "", &stormerr.AmbiguousTableError{Field: field.Path, Paths: candidates}
	}
}

func (g *Graph) candidateAliases(t reflect.Type, scope ResolveScope) []string {
	switch scope {
	case LOCAL:
		return g.aliases[t]
	case OUTER:
		if g.outer == nil {
			return nil
		}
		return g.outer.candidateAliases(t, CASCADE)
	default: // CASCADE
		if local := g.aliases[t]; len(local) > 0 {
			return local
		}
		if g.outer != nil {
			return g.outer.candidateAliases(t, CASCADE)
		}
		return nil
	}
}
