package model

import (
	"reflect"

	"github.com/storm-repo/storm-framework-sub012/stormerr"
)

// RecordAccess is the per-type capability spec.md §9 calls for: extract the
// PK, extract/set a column value by name, and construct a zero record — all
// without re-deriving reflect.StructField lookups on every call. A
// TypedModel pairs this with a Model so repositories never reflect on
// column names in their hot path; cmd/stormgen can also emit a
// compile-time RecordAccess that skips reflection entirely, satisfying
// "prefer compile-time generation; fall back to a reflective adaptor".
type RecordAccess[T any] interface {
	// ExtractPK returns the PK column values, in Model.PK.Columns order.
	ExtractPK(rec *T) []any
	// ColumnValue returns the current value of the named column.
	ColumnValue(rec *T, column string) (any, error)
	// SetColumnValue writes v into the named column of rec.
	SetColumnValue(rec *T, column string, v any) error
	// New returns a zero-valued *T, used when materialising query results.
	New() *T
}

// reflectiveAccess is the default RecordAccess: it resolves each column's
// reflect.Value via the Model's precomputed FieldIndex, so the only
// reflection happening per call is a FieldByIndex walk, not a field-name
// scan.
type reflectiveAccess[T any] struct {
	model *Model
}

// NewReflectiveAccess builds the default reflection-backed RecordAccess for
// T using m.
func NewReflectiveAccess[T any](m *Model) RecordAccess[T] {
	return &reflectiveAccess[T]{model: m}
}

func (a *reflectiveAccess[T]) ExtractPK(rec *T) []any {
	v := reflect.ValueOf(rec).Elem()
	out := make([]any, len(a.model.PK.Columns))
	for i, c := range a.model.PK.Columns {
		out[i] = v.FieldByIndex(c.FieldIndex).Interface()
	}
	return out
}

func (a *reflectiveAccess[T]) ColumnValue(rec *T, column string) (any, error) {
	c, ok := a.model.ColumnByName(column)
	if !ok {
		return nil, &stormerr.ConfigError{Type: a.model.Type.String(), Reason: "unknown column " + column}
	}
	v := reflect.ValueOf(rec).Elem()
	return v.FieldByIndex(c.FieldIndex).Interface(), nil
}

func (a *reflectiveAccess[T]) SetColumnValue(rec *T, column string, val any) error {
	c, ok := a.model.ColumnByName(column)
	if !ok {
		return &stormerr.ConfigError{Type: a.model.Type.String(), Reason: "unknown column " + column}
	}
	v := reflect.ValueOf(rec).Elem().FieldByIndex(c.FieldIndex)
	if !v.CanSet() {
		return &stormerr.ConfigError{Type: a.model.Type.String(), Reason: "column " + column + " is not settable"}
	}
	rv := reflect.ValueOf(val)
	if rv.IsValid() && rv.Type().AssignableTo(v.Type()) {
		v.Set(rv)
		return nil
	}
	if rv.IsValid() && rv.Type().ConvertibleTo(v.Type()) {
		v.Set(rv.Convert(v.Type()))
		return nil
	}
	return &stormerr.ConfigError{Type: a.model.Type.String(), Reason: "value for column " + column + " is not assignable"}
}

func (a *reflectiveAccess[T]) New() *T {
	return new(T)
}

// TypedModel pairs a reflection-derived Model with a generic RecordAccess,
// the unit that Registry.Typed returns to callers that know T at compile
// time.
type TypedModel[T any] struct {
	*Model
	Access RecordAccess[T]
}

// Typed returns the TypedModel for T, building the underlying Model on
// first use via r.
func Typed[T any](r *Registry) (*TypedModel[T], error) {
	var zero T
	t := reflect.TypeOf(zero)
	m, err := r.ModelOf(t)
	if err != nil {
		return nil, err
	}
	return &TypedModel[T]{Model: m, Access: NewReflectiveAccess[T](m)}, nil
}

// TypedWithAccess is Typed's counterpart for callers holding a generated,
// non-reflective RecordAccess (cmd/stormgen's output): it still derives T's
// Model the normal way, so column metadata, FKs and soft-delete detection
// stay tag-driven, but swaps in access instead of a reflectiveAccess.
func TypedWithAccess[T any](r *Registry, access RecordAccess[T]) (*TypedModel[T], error) {
	var zero T
	t := reflect.TypeOf(zero)
	m, err := r.ModelOf(t)
	if err != nil {
		return nil, err
	}
	return &TypedModel[T]{Model: m, Access: access}, nil
}
