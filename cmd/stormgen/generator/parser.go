package generator

import (
	"fmt"
	"go/types"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

// FieldMeta describes one generated column: the struct field it reads/
// writes and the column name it's addressed by. Type is kept as a
// types.Type rather than a pre-rendered string so the emitter can render it
// relative to whatever import aliases that specific output file ends up
// needing.
type FieldMeta struct {
	FieldName string
	Column    string
	Type      types.Type
	IsPK      bool
}

// ModelMeta describes one struct type stormgen will emit a RecordAccess
// for.
type ModelMeta struct {
	PackageName string
	PackagePath string
	TypeName    string
	Fields      []FieldMeta
	PKFields    []FieldMeta
}

// tagOptions mirrors model.tagOptions' grammar exactly (column name, skip,
// pk-ness) so a struct tagged the way the runtime Model Registry expects
// gets the same columns generated for it; stormgen only needs the subset
// relevant to reading/writing a value, not the Registry's full FK/version/
// soft-delete bookkeeping.
type tagOptions struct {
	name string
	skip bool
	pk   bool
}

func parseTag(raw string) tagOptions {
	if raw == "-" {
		return tagOptions{skip: true}
	}
	parts := strings.Split(raw, ",")
	opts := tagOptions{name: parts[0]}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case p == "pk", p == "identity":
			opts.pk = true
		case strings.HasPrefix(p, "sequence="):
			opts.pk = true
		}
	}
	return opts
}

func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
				if !(prev >= 'A' && prev <= 'Z') || nextLower {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Load type-checks the package rooted at dir, upgrading the teacher's
// single-file go/parser.ParseDir walk to whole-package loading via
// golang.org/x/tools/go/packages so embedded fields and type-aliased
// columns resolve against real type information instead of bare AST
// syntax. It returns one ModelMeta per struct carrying at least one
// `db:"..."` tag, filtered by cfg.
func Load(dir string, cfg Config) ([]ModelMeta, error) {
	pkgs, err := packages.Load(&packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax,
		Dir:  dir,
	}, ".")
	if err != nil {
		return nil, fmt.Errorf("stormgen: loading %s: %w", dir, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("stormgen: no package found in %s", dir)
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, fmt.Errorf("stormgen: %s: %v", dir, pkg.Errors[0])
	}

	include := toSet(cfg.IncludeStructs)
	exclude := toSet(cfg.ExcludeStructs)

	scope := pkg.Types.Scope()
	var models []ModelMeta
	for _, name := range scope.Names() {
		obj, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !obj.Exported() {
			continue
		}
		st, ok := obj.Type().Underlying().(*types.Struct)
		if !ok {
			continue
		}
		if len(include) > 0 && !include[name] {
			continue
		}
		if exclude[name] {
			continue
		}

		mm := ModelMeta{PackageName: pkg.Name, PackagePath: pkg.PkgPath, TypeName: name}
		walkStruct(st, &mm)
		if len(mm.Fields) == 0 {
			continue
		}
		models = append(models, mm)
	}

	sort.Slice(models, func(i, j int) bool { return models[i].TypeName < models[j].TypeName })
	return models, nil
}

// walkStruct collects FieldMeta for st's exported, db-tagged fields,
// recursing into anonymous struct fields in place, mirroring
// model.buildModel's "inlined records expanded in place" rule.
func walkStruct(st *types.Struct, mm *ModelMeta) {
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Exported() {
			continue
		}
		if f.Embedded() {
			if embedded, ok := f.Type().Underlying().(*types.Struct); ok {
				walkStruct(embedded, mm)
			}
			continue
		}

		tagRaw := reflect.StructTag(st.Tag(i)).Get("db")
		if tagRaw == "" {
			continue
		}
		opts := parseTag(tagRaw)
		if opts.skip {
			continue
		}
		column := opts.name
		if column == "" {
			column = toSnakeCase(f.Name())
		}

		fm := FieldMeta{
			FieldName: f.Name(),
			Column:    column,
			Type:      f.Type(),
			IsPK:      opts.pk,
		}
		mm.Fields = append(mm.Fields, fm)
		if fm.IsPK {
			mm.PKFields = append(mm.PKFields, fm)
		}
	}
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
