package generator

import (
	"fmt"
	"go/format"
	"go/types"
	"sort"
	"strings"
)

// importTracker accumulates the foreign packages a generated file's field
// types reference, so the emitted import block only lists what's actually
// used rather than a conservative superset.
type importTracker struct {
	pkgPath string // the model's own package path, never imported
	paths   map[string]string
}

func newImportTracker(pkgPath string) *importTracker {
	return &importTracker{pkgPath: pkgPath, paths: map[string]string{}}
}

func (t *importTracker) qualifier(p *types.Package) string {
	if p.Path() == t.pkgPath {
		return ""
	}
	t.paths[p.Path()] = p.Name()
	return p.Name()
}

func (t *importTracker) require(path, name string) {
	t.paths[path] = name
}

func (t *importTracker) importBlock() string {
	if len(t.paths) == 0 {
		return ""
	}
	paths := make([]string, 0, len(t.paths))
	for p := range t.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var b strings.Builder
	b.WriteString("import (\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "\t%q\n", p)
	}
	b.WriteString(")\n\n")
	return b.String()
}

// Emit renders a complete, gofmt'd Go source file implementing
// model.RecordAccess[mm.TypeName] for the one model mm describes, as a
// `NewXxxRecordAccess`-constructed unexported type reading/writing struct
// fields by name instead of reflect.Value.FieldByIndex.
func Emit(mm ModelMeta) ([]byte, error) {
	imports := newImportTracker(mm.PackagePath)
	const modelPkg = "github.com/storm-repo/storm-framework-sub012/model"
	const errPkg = "github.com/storm-repo/storm-framework-sub012/stormerr"
	imports.require(modelPkg, "model")
	imports.require(errPkg, "stormerr")

	receiver := strings.ToLower(mm.TypeName[:1]) + mm.TypeName[1:] + "RecordAccess"

	var body strings.Builder
	fmt.Fprintf(&body, "type %s struct{}\n\n", receiver)

	emitExtractPK(&body, mm, receiver)
	emitColumnValue(&body, mm, receiver, imports)
	emitSetColumnValue(&body, mm, receiver, imports)
	fmt.Fprintf(&body, "func (%s) New() *%s { return &%s{} }\n\n", receiver, mm.TypeName, mm.TypeName)
	fmt.Fprintf(&body, "// New%sRecordAccess returns the generated, reflection-free RecordAccess for\n// %s.\n", mm.TypeName, mm.TypeName)
	fmt.Fprintf(&body, "func New%sRecordAccess() model.RecordAccess[%s] { return %s{} }\n", mm.TypeName, mm.TypeName, receiver)

	var out strings.Builder
	out.WriteString("// Code generated by stormgen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&out, "package %s\n\n", mm.PackageName)
	out.WriteString(imports.importBlock())
	out.WriteString(body.String())

	formatted, err := format.Source([]byte(out.String()))
	if err != nil {
		return nil, fmt.Errorf("stormgen: formatting generated source for %s: %w", mm.TypeName, err)
	}
	return formatted, nil
}

func emitExtractPK(body *strings.Builder, mm ModelMeta, receiver string) {
	fmt.Fprintf(body, "func (%s) ExtractPK(rec *%s) []any {\n", receiver, mm.TypeName)
	if len(mm.PKFields) == 0 {
		body.WriteString("\treturn nil\n}\n\n")
		return
	}
	body.WriteString("\treturn []any{")
	for i, f := range mm.PKFields {
		if i > 0 {
			body.WriteString(", ")
		}
		fmt.Fprintf(body, "rec.%s", f.FieldName)
	}
	body.WriteString("}\n}\n\n")
}

func emitColumnValue(body *strings.Builder, mm ModelMeta, receiver string, imports *importTracker) {
	fmt.Fprintf(body, "func (%s) ColumnValue(rec *%s, column string) (any, error) {\n\tswitch column {\n", receiver, mm.TypeName)
	for _, f := range mm.Fields {
		fmt.Fprintf(body, "\tcase %q:\n\t\treturn rec.%s, nil\n", f.Column, f.FieldName)
	}
	fmt.Fprintf(body, "\tdefault:\n\t\treturn nil, &stormerr.ConfigError{Type: %q, Reason: \"unknown column \" + column}\n\t}\n}\n\n", mm.TypeName)
}

func emitSetColumnValue(body *strings.Builder, mm ModelMeta, receiver string, imports *importTracker) {
	fmt.Fprintf(body, "func (%s) SetColumnValue(rec *%s, column string, val any) error {\n\tswitch column {\n", receiver, mm.TypeName)
	for _, f := range mm.Fields {
		typeExpr := types.TypeString(f.Type, imports.qualifier)
		fmt.Fprintf(body, "\tcase %q:\n", f.Column)
		fmt.Fprintf(body, "\t\tv, ok := val.(%s)\n", typeExpr)
		fmt.Fprintf(body, "\t\tif !ok {\n\t\t\treturn &stormerr.ConfigError{Type: %q, Reason: \"value for column \" + column + \" is not assignable\"}\n\t\t}\n", mm.TypeName)
		fmt.Fprintf(body, "\t\trec.%s = v\n\t\treturn nil\n", f.FieldName)
	}
	fmt.Fprintf(body, "\tdefault:\n\t\treturn &stormerr.ConfigError{Type: %q, Reason: \"unknown column \" + column}\n\t}\n}\n\n", mm.TypeName)
}
