package template

import (
	"reflect"

	"github.com/storm-repo/storm-framework-sub012/metamodel"
)

// Kind identifies the syntactic role of one Element in a TemplateString,
// per spec.md §4.3's Element table.
type Kind int

const (
	KindSelect Kind = iota
	KindFrom
	KindInsert
	KindValues
	KindUpdate
	KindSet
	KindWhere
	KindDelete
	KindTable
	KindAlias
	KindColumn
	KindParam
	KindBindVar
	KindSubquery
	KindUnsafe
)

// Element is one typed slot in a TemplateString's expansion stream.
type Element interface {
	Kind() Kind
}

// SelectMode chooses what SelectElem emits for a type: the PK columns only,
// a flat column list, or a nested (join-aware) column list that also
// expands FK-reachable rows' columns (matching scenario 1's pet/pet_type/
// owner column list).
type SelectMode int

const (
	SelectFlat SelectMode = iota
	SelectPK
	SelectNested
)

type SelectElem struct {
	Type reflect.Type
	Mode SelectMode
}

func (SelectElem) Kind() Kind { return KindSelect }

type FromElem struct {
	Type     reflect.Type
	Alias    string
	AutoJoin bool
}

func (FromElem) Kind() Kind { return KindFrom }

type InsertElem struct {
	Type               reflect.Type
	IgnoreAutoGenerate bool
}

func (InsertElem) Kind() Kind { return KindInsert }

type ValuesElem struct {
	Records            []any
	IgnoreAutoGenerate bool
}

func (ValuesElem) Kind() Kind { return KindValues }

type UpdateElem struct {
	Type  reflect.Type
	Alias string
}

func (UpdateElem) Kind() Kind { return KindUpdate }

// Assignment is one "column = value" pair in a SET clause.
type Assignment struct {
	Column Column
	Value  any
}

type SetElem struct {
	Assignments []Assignment
}

func (SetElem) Kind() Kind { return KindSet }

// WhereElem wraps an Expression (see expression.go); Expression is also
// used by the Query Builder's PredicateBuilder, matching the teacher's
// clause.Expression contract.
type WhereElem struct {
	Expr Expression
}

func (WhereElem) Kind() Kind { return KindWhere }

type DeleteElem struct {
	Type  reflect.Type
	Alias string
}

func (DeleteElem) Kind() Kind { return KindDelete }

type TableElem struct {
	Type  reflect.Type
	Scope metamodel.ResolveScope
}

func (TableElem) Kind() Kind { return KindTable }

type AliasElem struct {
	Type reflect.Type
}

func (AliasElem) Kind() Kind { return KindAlias }

type ColumnElem struct {
	Field metamodel.Field
	Scope metamodel.ResolveScope
}

func (ColumnElem) Kind() Kind { return KindColumn }

type ParamElem struct {
	Name      string
	Value     any
	Converter func(any) (any, error)
}

func (ParamElem) Kind() Kind { return KindParam }

// BindVarElem renders as a bare "?" placeholder. Expand does not call
// Extractor and adds no argument for it; the caller supplies that argument.
type BindVarElem struct {
	Extractor func(bindVars any) (any, error)
}

func (BindVarElem) Kind() Kind { return KindBindVar }

type SubqueryElem struct {
	Inner      *TemplateString
	Correlated bool
}

func (SubqueryElem) Kind() Kind { return KindSubquery }

// UnsafeElem emits Raw verbatim, with no parameter binding. Callers are
// responsible for never interpolating untrusted input here.
type UnsafeElem struct {
	Raw string
}

func (UnsafeElem) Kind() Kind { return KindUnsafe }
