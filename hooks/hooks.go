// Package hooks implements Storm's lifecycle hook mechanism (SPEC_FULL.md
// F.3): code that runs immediately before or after INSERT/UPDATE/DELETE.
// It generalizes the teacher repository's hooks.go from a single dispatch
// path (a model implementing BeforeCreateInterface et al.) into two paths
// that compose: the same per-model interfaces, plus a process-wide Registry
// for hooks that don't belong to the entity type itself (cross-cutting
// audit logging, cache invalidation) and so can't be expressed as a method
// on T.
package hooks

import "context"

type BeforeCreateInterface interface{ BeforeCreate(context.Context) error }
type AfterCreateInterface interface{ AfterCreate(context.Context) error }
type BeforeUpdateInterface interface{ BeforeUpdate(context.Context) error }
type AfterUpdateInterface interface{ AfterUpdate(context.Context) error }
type BeforeDeleteInterface interface{ BeforeDelete(context.Context) error }
type AfterDeleteInterface interface{ AfterDelete(context.Context) error }

// Kind names a lifecycle point a Registry hook fires at.
type Kind int

const (
	BeforeCreate Kind = iota
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeDelete
	AfterDelete
)

// Func is a registry-level hook: it receives the entity as `any` since a
// Registry has no static T, unlike the per-model interfaces above.
type Func func(ctx context.Context, entity any) error

// Registry holds process-wide hooks, keyed by lifecycle Kind, that run in
// addition to (after) any interface hook the entity itself implements. Used
// for cross-cutting concerns (audit trails, cache invalidation) that don't
// belong to one entity type's own method set.
type Registry struct {
	byKind map[Kind][]Func
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[Kind][]Func)}
}

// On registers fn to run at kind, in registration order.
func (r *Registry) On(kind Kind, fn Func) {
	r.byKind[kind] = append(r.byKind[kind], fn)
}

func (r *Registry) run(ctx context.Context, kind Kind, entity any) error {
	for _, fn := range r.byKind[kind] {
		if err := fn(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// Fire invokes the interface hook for kind on entity (if it implements the
// matching interface), then every Registry-level hook for kind, in that
// order. A nil Registry only runs the interface hook.
func Fire(ctx context.Context, r *Registry, kind Kind, entity any) error {
	if err := fireInterface(ctx, kind, entity); err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	return r.run(ctx, kind, entity)
}

func fireInterface(ctx context.Context, kind Kind, entity any) error {
	switch kind {
	case BeforeCreate:
		if m, ok := entity.(BeforeCreateInterface); ok {
			return m.BeforeCreate(ctx)
		}
	case AfterCreate:
		if m, ok := entity.(AfterCreateInterface); ok {
			return m.AfterCreate(ctx)
		}
	case BeforeUpdate:
		if m, ok := entity.(BeforeUpdateInterface); ok {
			return m.BeforeUpdate(ctx)
		}
	case AfterUpdate:
		if m, ok := entity.(AfterUpdateInterface); ok {
			return m.AfterUpdate(ctx)
		}
	case BeforeDelete:
		if m, ok := entity.(BeforeDeleteInterface); ok {
			return m.BeforeDelete(ctx)
		}
	case AfterDelete:
		if m, ok := entity.(AfterDeleteInterface); ok {
			return m.AfterDelete(ctx)
		}
	}
	return nil
}
