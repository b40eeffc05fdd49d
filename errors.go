package storm

import "github.com/storm-repo/storm-framework-sub012/stormerr"

// Error kinds are defined in the leaf package stormerr (so every component
// package can return them without creating an import cycle back through the
// root storm package) and re-exported here as the public API surface,
// matching spec.md §7's taxonomy exactly.
type (
	ConfigError          = stormerr.ConfigError
	TemplateError        = stormerr.TemplateError
	AmbiguousTableError  = stormerr.AmbiguousTableError
	NoResult             = stormerr.NoResult
	NonUniqueResult      = stormerr.NonUniqueResult
	OptimisticLock       = stormerr.OptimisticLock
	Persistence          = stormerr.Persistence
	TransactionTimedOut  = stormerr.TransactionTimedOut
	UnexpectedRollback   = stormerr.UnexpectedRollback
	PropagationViolation = stormerr.PropagationViolation
)
