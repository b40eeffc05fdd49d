// Package plan implements the Write Planner (C5): turns a domain entity plus
// its observed baseline into a concrete UPDATE decision, applying
// dirty-checking, shape-capped FIELD mode and optimistic-lock version
// bumping (spec.md §4.5). It mirrors the dirty-tracking groundwork in the
// teacher repository's repository.go (UpdateVersioned) and hooks.go
// (pre/post-update lifecycle), generalized from a single hard-coded
// versioned-update path into a per-type, mode-driven planner.
package plan

import (
	"reflect"

	"github.com/storm-repo/storm-framework-sub012/model"
	"github.com/storm-repo/storm-framework-sub012/stormcfg"
)

// Decision is the outcome of planning an UPDATE for one entity.
type Decision struct {
	// Skip is true when no column changed and no UPDATE should be issued
	// at all (spec.md §9's Open Question: a present-but-unchanged version
	// column still results in Skip, never a forced bump).
	Skip bool

	// Columns lists the updatable, non-version columns to include in SET,
	// in Model.Columns declaration order. PK columns are updatable unless
	// tagged updatable=false, so they can appear here too.
	Columns []string

	// BumpVersion is true when the Model carries a version column and
	// Skip is false; the caller (exec) increments it and adds it both to
	// SET and to the WHERE clause's optimistic-lock predicate.
	BumpVersion   bool
	VersionColumn string

	// Shape is the canonical dirty-column-set key used for this decision,
	// for diagnostics; it is ShapeKey(Columns) for FIELD-mode decisions.
	Shape string
}

// Planner plans UPDATE statements for one entity type T.
type Planner[T any] struct {
	Model  *model.Model
	Access model.RecordAccess[T]
	Config *stormcfg.Config
	Shapes *ShapeCache
}

// NewPlanner constructs a Planner for m, reading its defaults from cfg (or
// stormcfg.GlobalConfig if cfg is nil).
func NewPlanner[T any](m *model.TypedModel[T], cfg *stormcfg.Config) *Planner[T] {
	if cfg == nil {
		cfg = stormcfg.GlobalConfig
	}
	return &Planner[T]{Model: m.Model, Access: m.Access, Config: cfg, Shapes: NewShapeCache()}
}

// PlanUpdate implements spec.md §4.5's algorithm:
//  1. UpdateMode OFF, or no baseline Observation at all, always emits a
//     full-row UPDATE (no dirty-checking possible without a baseline).
//  2. Otherwise each updatable, non-version column is compared against its
//     baseline snapshot using the configured DirtyCheck strategy.
//  3. An empty dirty set always Skips the UPDATE, even when the entity
//     carries a version column (the documented Open Question decision:
//     preserve current behaviour rather than force a no-op version bump).
//  4. ENTITY mode (or a FIELD-mode shape-cap promotion, P6) emits every
//     updatable column; FIELD mode emits only the dirty columns.
//  5. A present version column is always added to SET (incremented) and to
//     the optimistic-lock WHERE predicate whenever the UPDATE is not
//     skipped.
func (p *Planner[T]) PlanUpdate(entity *T, obs Observation) (Decision, error) {
	mode := p.Config.UpdateMode()
	var versionName string
	if p.Model.Version != nil {
		versionName = p.Model.Version.Name
	}

	if mode == stormcfg.UpdateModeOff || obs == nil {
		return Decision{Columns: p.allUpdatableNonVersion(), BumpVersion: versionName != "", VersionColumn: versionName}, nil
	}

	dirty, err := p.dirtyColumns(entity, obs)
	if err != nil {
		return Decision{}, err
	}
	if len(dirty) == 0 {
		return Decision{Skip: true}, nil
	}

	if mode == stormcfg.UpdateModeEntity {
		return Decision{Columns: p.allUpdatableNonVersion(), BumpVersion: versionName != "", VersionColumn: versionName}, nil
	}

	// FIELD mode: check the shape cap (P6).
	shape := ShapeKey(dirty)
	if p.Shapes.Record(p.Model.Type, shape, p.Config.MaxShapes()) {
		return Decision{Columns: p.allUpdatableNonVersion(), BumpVersion: versionName != "", VersionColumn: versionName, Shape: shape}, nil
	}
	return Decision{Columns: dirty, BumpVersion: versionName != "", VersionColumn: versionName, Shape: shape}, nil
}

func (p *Planner[T]) allUpdatableNonVersion() []string {
	cols := p.Model.UpdatableColumns()
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c.IsVersion {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// dirtyColumns compares entity's current column values against obs's
// baseline snapshots, using INSTANCE (reflect.DeepEqual on raw field values)
// or VALUE (converter-normalized DeepEqual on database-representation
// values) comparison per the configured DirtyCheck.
func (p *Planner[T]) dirtyColumns(entity *T, obs Observation) ([]string, error) {
	check := p.Config.DirtyCheck()
	var dirty []string
	for _, c := range p.Model.UpdatableColumns() {
		if c.IsVersion {
			continue
		}
		current, err := p.Access.ColumnValue(entity, c.Name)
		if err != nil {
			return nil, err
		}
		baseline, known := obs.ColumnSnapshot(c.Name)
		if !known {
			// Never observed: treat as dirty so new columns added after
			// the observation was captured are never silently dropped.
			dirty = append(dirty, c.Name)
			continue
		}
		if check == stormcfg.DirtyCheckValue {
			current = p.normalize(c.Name, current)
			baseline = p.normalize(c.Name, baseline)
		}
		if !reflect.DeepEqual(current, baseline) {
			dirty = append(dirty, c.Name)
		}
	}
	return dirty, nil
}

func (p *Planner[T]) normalize(column string, v any) any {
	conv, ok := p.Model.Converters[column]
	if !ok {
		return v
	}
	out, err := conv.ToDatabase(v)
	if err != nil {
		return v
	}
	return out
}
