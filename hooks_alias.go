package storm

import "github.com/storm-repo/storm-framework-sub012/hooks"

// Hooks is the root alias for the lifecycle hook registry (package hooks),
// the surface application code registers cross-cutting Before/After
// callbacks against.
type (
	Hooks    = hooks.Registry
	HookKind = hooks.Kind
)

const (
	BeforeCreate = hooks.BeforeCreate
	AfterCreate  = hooks.AfterCreate
	BeforeUpdate = hooks.BeforeUpdate
	AfterUpdate  = hooks.AfterUpdate
	BeforeDelete = hooks.BeforeDelete
	AfterDelete  = hooks.AfterDelete
)

// NewHooks returns an empty Hooks registry.
func NewHooks() *Hooks { return hooks.NewRegistry() }
