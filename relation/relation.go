// Package relation implements batched eager-loading ("preloading") of
// associated rows, a Repository-level convenience layered on top of the
// Query Builder (C4) and Execution Engine (C6) rather than a component of
// its own. It generalizes the teacher's relation.go HasOne/HasMany
// definitions (bound to a hard-coded Session and raw clause.IN query) into
// one built from any exec.Engine[C] and metamodel.Field pair.
package relation

import (
	"context"
	"fmt"

	"github.com/storm-repo/storm-framework-sub012/exec"
	"github.com/storm-repo/storm-framework-sub012/metamodel"
	"github.com/storm-repo/storm-framework-sub012/query"
)

// Kind distinguishes a 1:1 association (parent has one child) from a 1:N
// association (parent has many children).
type Kind int

const (
	HasOneKind Kind = iota
	HasManyKind
)

// Relation describes a preloadable association between parent type P and
// child type C: ForeignKey names the child column referencing the parent,
// LocalKey names the parent column it references (usually the parent's PK).
type Relation[P, C any] struct {
	Kind       Kind
	ForeignKey metamodel.Field
	LocalKey   metamodel.Field
	// SetOne assigns a single loaded child (nil if none) to parent; used
	// for HasOneKind.
	SetOne func(parent *P, child *C)
	// SetMany assigns every loaded child to parent, in no particular
	// order; used for HasManyKind. Always called with a non-nil slice
	// (possibly empty), so callers never need a nil check.
	SetMany func(parent *P, children []*C)
	// LocalKeyValue extracts the parent's LocalKey value, used to build the
	// batched IN query and to re-associate loaded children afterward.
	LocalKeyValue func(parent *P) any
}

// HasOne builds a 1:1 Relation.
func HasOne[P, C any](fk, lk metamodel.Field, setter func(*P, *C), localKeyValue func(*P) any) Relation[P, C] {
	return Relation[P, C]{Kind: HasOneKind, ForeignKey: fk, LocalKey: lk, SetOne: setter, LocalKeyValue: localKeyValue}
}

// HasMany builds a 1:N Relation.
func HasMany[P, C any](fk, lk metamodel.Field, setter func(*P, []*C), localKeyValue func(*P) any) Relation[P, C] {
	return Relation[P, C]{Kind: HasManyKind, ForeignKey: fk, LocalKey: lk, SetMany: setter, LocalKeyValue: localKeyValue}
}

// Preload loads rel's children for every parent in one batched query (a
// single `WHERE fk IN (...)` against the child table, rather than one query
// per parent), and assigns them via rel.SetOne/SetMany. A no-op when
// parents is empty.
func Preload[P, C any](ctx context.Context, childEngine *exec.Engine[C], rel Relation[P, C], parents []*P) error {
	if len(parents) == 0 {
		return nil
	}

	ids := make([]any, 0, len(parents))
	seen := make(map[any]bool, len(parents))
	for _, p := range parents {
		id := rel.LocalKeyValue(p)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	q := query.SelectFrom(childEngine.Registry, childEngine.Typed.Type)
	q = q.Where(q.Predicates().In(rel.ForeignKey, ids...))
	children, err := childEngine.FindAll(ctx, q)
	if err != nil {
		return fmt.Errorf("storm: preload: %w", err)
	}

	byParentID := make(map[any][]*C, len(ids))
	for _, c := range children {
		fkVal, err := childEngine.Typed.Access.ColumnValue(c, rel.ForeignKey.Column)
		if err != nil {
			return fmt.Errorf("storm: preload: %w", err)
		}
		byParentID[fkVal] = append(byParentID[fkVal], c)
	}

	for _, p := range parents {
		id := rel.LocalKeyValue(p)
		matched := byParentID[id]
		switch rel.Kind {
		case HasOneKind:
			var one *C
			if len(matched) > 0 {
				one = matched[0]
			}
			rel.SetOne(p, one)
		case HasManyKind:
			if matched == nil {
				matched = []*C{}
			}
			rel.SetMany(p, matched)
		}
	}
	return nil
}
