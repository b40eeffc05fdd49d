// Package model implements the Model Registry (C1): derivation and caching
// of schema descriptors from Go struct types, and the precomputed accessors
// that read/write primary-key and column values without reflection on the
// hot path.
package model

import "reflect"

// PKKind identifies the shape of a Model's primary key.
type PKKind int

const (
	PKNone PKKind = iota
	PKIdentity
	PKSequence
	PKComposite
)

func (k PKKind) String() string {
	switch k {
	case PKIdentity:
		return "IDENTITY"
	case PKSequence:
		return "SEQUENCE"
	case PKComposite:
		return "COMPOSITE"
	default:
		return "NONE"
	}
}

// Column is one mapped struct field.
type Column struct {
	Name        string // database column name
	FieldName   string // Go struct field name
	FieldIndex  []int  // reflect.Value.FieldByIndex path (supports inlined records)
	Insertable  bool
	Updatable   bool
	IsVersion   bool
	DeclOrder   int
}

// PK describes the primary key group of a Model. Columns holds one entry
// for IDENTITY/SEQUENCE, more than one for COMPOSITE, none for NONE.
type PK struct {
	Kind         PKKind
	Columns      []Column
	SequenceName string
}

// ForeignKey maps a struct component to the table/columns it references.
// LocalColumns and ReferencedColumns are ordered lists: the explicit,
// unambiguous replacement for a source dialect that allowed two successive
// column annotations on one field to mean "composite FK" (see DESIGN.md).
type ForeignKey struct {
	ComponentIndex int
	// ReferencedTypeName names the referenced record type as registered
	// with Registry.RegisterNamed; resolved to a reflect.Type lazily
	// (Registry.ResolveType) once every entity type involved in a query has
	// been registered, avoiding a registration-order dependency between
	// mutually referencing types.
	ReferencedTypeName string
	LocalColumns       []string
	ReferencedColumns  []string
	// Optional marks a nullable association (LEFT JOIN in nested SELECT
	// expansion); non-optional FKs render as INNER JOIN. Joins are ordered
	// inner-first, outer-last (spec.md §4.3).
	Optional bool
}

// Converter maps a column's database representation to and from its Go
// domain value.
type Converter interface {
	ToDatabase(v any) (any, error)
	FromDatabase(v any) (any, error)
}

// Table is the qualified name of a Model's backing relation.
type Table struct {
	Schema      string
	Name        string
	ForceEscape bool
}

// Model is the schema descriptor for a Go struct type, computed once per
// type and cached by Registry.
type Model struct {
	Type       reflect.Type
	Table      Table
	Columns    []Column // canonical declaration order, inlined records expanded in place
	PK         PK
	Version    *Column
	FKs        map[int]ForeignKey
	Converters map[string]Converter
	// SoftDelete names the column a Delete marks instead of removing the
	// row (spec.md's Query Builder never mentions soft delete, but never
	// excludes it either — it slots in as an implicit WHERE predicate here
	// and a DELETE-to-UPDATE rewrite in the Write Planner). Nil means the
	// model hard-deletes. The mark value at delete time is derived from the
	// column's Go field kind (time.Time -> now, bool -> true) rather than
	// stored on the Model, since "now" can't be fixed at model-build time.
	SoftDelete *Column
}

// ColumnByName returns the column with the given database name, if present.
func (m *Model) ColumnByName(name string) (Column, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// InsertableColumns returns columns with Insertable=true, in declaration order.
func (m *Model) InsertableColumns() []Column {
	out := make([]Column, 0, len(m.Columns))
	for _, c := range m.Columns {
		if c.Insertable {
			out = append(out, c)
		}
	}
	return out
}

// UpdatableColumns returns columns with Updatable=true, in declaration order.
func (m *Model) UpdatableColumns() []Column {
	out := make([]Column, 0, len(m.Columns))
	for _, c := range m.Columns {
		if c.Updatable {
			out = append(out, c)
		}
	}
	return out
}
