package template

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/storm-repo/storm-framework-sub012/metamodel"
	"github.com/storm-repo/storm-framework-sub012/model"
	"github.com/storm-repo/storm-framework-sub012/stormerr"
)

// Escaper escapes a bare identifier per the active Dialect; nil means no
// escaping (used by tests that assert unescaped SQL against spec.md §8's
// literal scenarios).
type Escaper func(ident string) string

// join describes one auto-resolved FK join, in emission order
// (inner-first, outer-last, stable by declaration order within each group
// — spec.md §4.3).
type join struct {
	table      string
	alias      string
	local      []string
	referenced []string
	outer      bool
	model      *model.Model
}

// Expander runs the two-phase algorithm from spec.md §4.3 over one
// TemplateString: Resolution walks every Element once to build the alias
// map and the auto-join list (even though, e.g., a SELECT element's column
// list depends on joins introduced by a FROM element appearing later in the
// text); Render then walks the Elements in source order, now with full
// graph knowledge, concatenating literal chunks with rendered Elements
// while pushing parameters into an ordered arg list.
type Expander struct {
	Registry *model.Registry
	Escape   Escaper
}

func (x *Expander) escape(s string) string {
	if x.Escape == nil {
		return s
	}
	return x.Escape(s)
}

// Expand renders ts to a final SQL string and its ordered argument list.
// Calling Expand twice on the same TemplateString and Registry state yields
// identical output (spec.md P4).
func (x *Expander) Expand(ts *TemplateString) (sql string, args []any, err error) {
	graph, joins, mainAlias, mainModel, err := x.resolve(ts)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	for i, chunk := range ts.Chunks {
		b.WriteString(chunk)
		if i >= len(ts.Elements) {
			continue
		}
		rendered, eargs, err := x.render(ts.Elements[i], graph, joins, mainAlias, mainModel)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(rendered)
		args = append(args, eargs...)
	}
	return b.String(), args, nil
}

// resolve is phase 1: find the query's FROM element, build its alias graph,
// and compute the deterministic auto-join list.
func (x *Expander) resolve(ts *TemplateString) (*metamodel.Graph, []join, string, *model.Model, error) {
	var mainType reflect.Type
	for _, e := range ts.Elements {
		if f, ok := e.(FromElem); ok {
			mainType = f.Type
			break
		}
		if f, ok := e.(UpdateElem); ok {
			mainType = f.Type
			break
		}
		if f, ok := e.(InsertElem); ok {
			mainType = f.Type
			break
		}
		if f, ok := e.(DeleteElem); ok {
			mainType = f.Type
			break
		}
	}
	if mainType == nil {
		return metamodel.NewGraph(nil, ""), nil, "", nil, nil
	}

	mainModel, err := x.Registry.ModelOf(mainType)
	if err != nil {
		return nil, nil, "", nil, err
	}
	mainAlias := AliasForTableName(mainModel.Table.Name)
	graph := metamodel.NewGraph(mainType, mainAlias)

	var inner, outer []join
	keys := make([]int, 0, len(mainModel.FKs))
	for k := range mainModel.FKs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		fk := mainModel.FKs[k]
		refModel, err := x.Registry.ReferencedModel(fk)
		if err != nil {
			return nil, nil, "", nil, err
		}
		alias := AliasForTableName(refModel.Table.Name)
		graph.Join(refModel.Type, alias)
		j := join{table: refModel.Table.Name, alias: alias, local: fk.LocalColumns, referenced: fk.ReferencedColumns, outer: fk.Optional, model: refModel}
		if fk.Optional {
			outer = append(outer, j)
		} else {
			inner = append(inner, j)
		}
	}
	joins := append(inner, outer...)
	return graph, joins, mainAlias, mainModel, nil
}

// AliasForTableName derives a deterministic table alias by taking the first letter
// of each underscore-separated word ("pet" -> "p", "pet_type" -> "pt"),
// matching spec.md §8 scenario 1's expected output exactly.
func AliasForTableName(tableName string) string {
	parts := strings.Split(tableName, "_")
	var b strings.Builder
	for _, p := range parts {
		if p != "" {
			b.WriteByte(p[0])
		}
	}
	return b.String()
}

func (x *Expander) render(e Element, graph *metamodel.Graph, joins []join, mainAlias string, mainModel *model.Model) (string, []any, error) {
	switch v := e.(type) {
	case SelectElem:
		return x.renderSelect(v, joins, mainAlias, mainModel)
	case FromElem:
		return x.renderFrom(v, joins, mainAlias, mainModel), nil, nil
	case UpdateElem:
		return x.escape(mainModel.Table.Name) + " " + mainAlias, nil, nil
	case DeleteElem:
		return x.escape(mainModel.Table.Name) + " " + mainAlias, nil, nil
	case InsertElem:
		return x.renderInsert(mainModel), nil, nil
	case ValuesElem:
		return renderValues(v)
	case SetElem:
		return renderSet(v)
	case WhereElem:
		s, a := v.Expr.Build()
		return s, a, nil
	case TableElem:
		m, err := x.Registry.ModelOf(v.Type)
		if err != nil {
			return "", nil, err
		}
		return x.escape(m.Table.Name), nil, nil
	case AliasElem:
		a, ok := graph.AliasOf(v.Type)
		if !ok {
			return "", nil, &stormerr.TemplateError{Reason: "type " + v.Type.String() + " has no alias in this query"}
		}
		return a, nil, nil
	case ColumnElem:
		alias, col, err := graph.Resolve(v.Field, v.Scope)
		if err != nil {
			return "", nil, err
		}
		return alias + "." + x.escape(col), nil, nil
	case ParamElem:
		return "?", []any{v.Value}, nil
	case BindVarElem:
		return "?", nil, nil // deferred args are supplied by the caller outside Expand
	case SubqueryElem:
		s, a, err := x.Expand(v.Inner)
		if err != nil {
			return "", nil, err
		}
		return "(" + s + ")", a, nil
	case UnsafeElem:
		return v.Raw, nil, nil
	default:
		return "", nil, &stormerr.TemplateError{Reason: fmt.Sprintf("unhandled element kind %T", e)}
	}
}

func (x *Expander) renderSelect(v SelectElem, joins []join, mainAlias string, mainModel *model.Model) (string, []any, error) {
	var cols []string
	switch v.Mode {
	case SelectPK:
		for _, c := range mainModel.PK.Columns {
			cols = append(cols, mainAlias+"."+x.escape(c.Name))
		}
	case SelectFlat:
		for _, c := range mainModel.Columns {
			cols = append(cols, mainAlias+"."+x.escape(c.Name))
		}
	default: // SelectNested
		for i, c := range mainModel.Columns {
			if _, isFK := mainModel.FKs[i]; isFK {
				// The FK's own local column (e.g. type_id) is a join key,
				// not a projected value; the referenced row's PK already
				// conveys it once the join is in the column list below.
				continue
			}
			cols = append(cols, mainAlias+"."+x.escape(c.Name))
		}
		for _, j := range joins {
			for _, c := range j.model.Columns {
				cols = append(cols, j.alias+"."+x.escape(c.Name))
			}
		}
	}
	return strings.Join(cols, ", "), nil, nil
}

func (x *Expander) renderFrom(v FromElem, joins []join, mainAlias string, mainModel *model.Model) string {
	var b strings.Builder
	b.WriteString(x.escape(mainModel.Table.Name))
	b.WriteString(" ")
	b.WriteString(mainAlias)
	if !v.AutoJoin {
		return b.String()
	}
	for _, j := range joins {
		kind := "INNER JOIN"
		if j.outer {
			kind = "LEFT JOIN"
		}
		b.WriteString(" ")
		b.WriteString(kind)
		b.WriteString(" ")
		b.WriteString(x.escape(j.table))
		b.WriteString(" ")
		b.WriteString(j.alias)
		b.WriteString(" ON ")
		var conds []string
		for i := range j.local {
			conds = append(conds, mainAlias+"."+x.escape(j.local[i])+"="+j.alias+"."+x.escape(j.referenced[i]))
		}
		b.WriteString(strings.Join(conds, " AND "))
	}
	return b.String()
}

func (x *Expander) renderInsert(m *model.Model) string {
	cols := m.InsertableColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = x.escape(c.Name)
	}
	return "INTO " + x.escape(m.Table.Name) + "(" + strings.Join(names, ", ") + ")"
}

func renderValues(v ValuesElem) (string, []any, error) {
	var groups []string
	var args []any
	for _, rec := range v.Records {
		row, ok := rec.([]any)
		if !ok {
			return "", nil, &stormerr.TemplateError{Reason: "VALUES element requires []any rows"}
		}
		ph := make([]string, len(row))
		for i := range row {
			ph[i] = "?"
		}
		groups = append(groups, "("+strings.Join(ph, ", ")+")")
		args = append(args, row...)
	}
	return strings.Join(groups, ", "), args, nil
}

func renderSet(v SetElem) (string, []any, error) {
	var parts []string
	var args []any
	for _, a := range v.Assignments {
		parts = append(parts, a.Column.String()+" = ?")
		args = append(args, a.Value)
	}
	return strings.Join(parts, ", "), args, nil
}
