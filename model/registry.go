package model

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
	"github.com/storm-repo/storm-framework-sub012/stormerr"
	"golang.org/x/sync/singleflight"
)

// TableNamer lets a Go type override the Model Registry's naming convention.
type TableNamer interface {
	TableName() string
}

// Registry derives and caches Models, keyed by reflect.Type. Concurrent
// first-miss population uses singleflight so two goroutines racing to build
// the same Model never run the builder twice ("at-most-one-builder
// semantics").
type Registry struct {
	group singleflight.Group
	cache sync.Map // reflect.Type -> *Model
	named sync.Map // string (type name) -> reflect.Type
}

// NewRegistry returns an empty Registry. A single process-wide Registry is
// normally sufficient; Registries are independent only for test isolation.
func NewRegistry() *Registry {
	return &Registry{}
}

// ModelOf returns the Model for Go type t (which must be a struct or a
// pointer to one), building and caching it on first use.
func (r *Registry) ModelOf(t reflect.Type) (*Model, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v, ok := r.cache.Load(t); ok {
		return v.(*Model), nil
	}
	v, err, _ := r.group.Do(t.String(), func() (any, error) {
		if v, ok := r.cache.Load(t); ok {
			return v, nil
		}
		m, err := buildModel(t)
		if err != nil {
			return nil, err
		}
		r.cache.Store(t, m)
		r.named.Store(t.Name(), t)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Model), nil
}

// RegisterNamed makes t resolvable by name (its Go type name, or an
// explicit alias) for template token resolution and ForeignKey.ReferencedTypeName
// lookups, without requiring a Model to have been built for it yet.
func (r *Registry) RegisterNamed(name string, t reflect.Type) {
	r.named.Store(name, t)
}

// ResolveType implements template.TypeResolver: it looks up a bare
// identifier (as it would appear in a TemplateString, e.g. "Pet") against
// every type this Registry has built a Model for or had explicitly
// registered via RegisterNamed.
func (r *Registry) ResolveType(name string) (reflect.Type, bool) {
	v, ok := r.named.Load(name)
	if !ok {
		return nil, false
	}
	return v.(reflect.Type), true
}

// ReferencedModel resolves fk.ReferencedTypeName against r and returns its
// Model, building it if necessary.
func (r *Registry) ReferencedModel(fk ForeignKey) (*Model, error) {
	t, ok := r.ResolveType(fk.ReferencedTypeName)
	if !ok {
		return nil, &stormerr.ConfigError{Reason: "foreign key references unknown type " + fk.ReferencedTypeName}
	}
	return r.ModelOf(t)
}

// tagOptions is the parsed form of a `db:"..."` struct tag.
type tagOptions struct {
	name          string
	skip          bool
	pk            bool
	identity      bool
	sequence      string
	version       bool
	softDelete    bool
	insertable    bool
	insertableSet bool
	updatable     bool
	fkType        string
	fkLocal       []string
	fkReferenced  []string
	fkOptional    bool
}

func parseTag(raw string) tagOptions {
	opts := tagOptions{insertable: true, updatable: true}
	if raw == "" {
		return opts
	}
	parts := strings.Split(raw, ",")
	if parts[0] == "-" {
		opts.skip = true
		return opts
	}
	opts.name = parts[0]
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case p == "pk":
			opts.pk = true
		case p == "identity":
			opts.identity = true
			opts.pk = true
		case p == "version":
			opts.version = true
		case p == "softDelete":
			opts.softDelete = true
		case p == "insertable=false":
			opts.insertable = false
			opts.insertableSet = true
		case p == "insertable=true":
			opts.insertable = true
			opts.insertableSet = true
		case p == "updatable=false":
			opts.updatable = false
		case strings.HasPrefix(p, "sequence="):
			opts.sequence = strings.TrimPrefix(p, "sequence=")
			opts.pk = true
		case p == "optional":
			opts.fkOptional = true
		case strings.HasPrefix(p, "fk:"):
			// fk:TypeName:local1|local2:ref1|ref2 -- ordered column lists,
			// the explicit syntax DESIGN.md picks for composite FKs in place
			// of a source dialect's ambiguous repeated-annotation form.
			body := strings.TrimPrefix(p, "fk:")
			segs := strings.SplitN(body, ":", 3)
			opts.fkType = segs[0]
			if len(segs) > 1 {
				opts.fkLocal = strings.Split(segs[1], "|")
			}
			if len(segs) > 2 {
				opts.fkReferenced = strings.Split(segs[2], "|")
			}
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

func defaultTableName(t reflect.Type) string {
	return inflect.Pluralize(toSnakeCase(t.Name()))
}

// buildModel reflects over t's exported fields, honoring `db:"..."` tags,
// and assembles a Model. Inline (anonymous) struct fields are expanded in
// place, preserving their declaration position, matching spec.md's
// "inlined records expanded in place" rule for canonical column order.
func buildModel(t reflect.Type) (*Model, error) {
	if t.Kind() != reflect.Struct {
		return nil, &stormerr.ConfigError{Type: t.String(), Reason: "not a struct type"}
	}

	m := &Model{
		Type:       t,
		FKs:        make(map[int]ForeignKey),
		Converters: make(map[string]Converter),
	}

	tableName := defaultTableName(t)
	if np := reflect.PointerTo(t); np.Implements(reflect.TypeOf((*TableNamer)(nil)).Elem()) {
		zero := reflect.New(t).Interface().(TableNamer)
		tableName = zero.TableName()
	}
	m.Table = Table{Name: tableName}

	decl := 0
	var pkCols []Column
	var seqName string
	hasIdentity := false

	var walk func(typ reflect.Type, index []int) error
	walk = func(typ reflect.Type, index []int) error {
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			if !f.IsExported() {
				continue
			}
			idx := append(append([]int{}, index...), i)

			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				if err := walk(f.Type, idx); err != nil {
					return err
				}
				continue
			}

			tagRaw, hasTag := f.Tag.Lookup("db")
			if !hasTag {
				continue
			}
			opts := parseTag(tagRaw)
			if opts.skip {
				continue
			}
			name := opts.name
			if name == "" {
				name = toSnakeCase(f.Name)
			}

			// An IDENTITY column's value is assigned by the database itself
			// (AUTOINCREMENT/SERIAL); unless a tag explicitly overrides it,
			// it is excluded from INSERT so a struct's zero value never
			// collides with an autoincrement sequence.
			insertable := opts.insertable
			if opts.identity && !opts.insertableSet {
				insertable = false
			}
			col := Column{
				Name:       name,
				FieldName:  f.Name,
				FieldIndex: idx,
				Insertable: insertable,
				Updatable:  opts.updatable,
				IsVersion:  opts.version,
				DeclOrder:  decl,
			}
			decl++
			m.Columns = append(m.Columns, col)

			if opts.version {
				v := col
				m.Version = &v
			}
			if opts.softDelete {
				sd := col
				m.SoftDelete = &sd
			}
			if opts.pk {
				pkCols = append(pkCols, col)
				if opts.identity {
					hasIdentity = true
				}
				if opts.sequence != "" {
					seqName = opts.sequence
				}
			}
			if opts.fkType != "" {
				m.FKs[len(m.Columns)-1] = ForeignKey{
					ComponentIndex:     len(m.Columns) - 1,
					ReferencedTypeName: opts.fkType,
					LocalColumns:       opts.fkLocal,
					ReferencedColumns:  opts.fkReferenced,
					Optional:           opts.fkOptional || f.Type.Kind() == reflect.Pointer,
				}
			}
		}
		return nil
	}
	if err := walk(t, nil); err != nil {
		return nil, err
	}

	switch {
	case len(pkCols) == 0:
		m.PK = PK{Kind: PKNone}
	case len(pkCols) == 1 && seqName != "":
		m.PK = PK{Kind: PKSequence, Columns: pkCols, SequenceName: seqName}
	case len(pkCols) == 1 && hasIdentity:
		m.PK = PK{Kind: PKIdentity, Columns: pkCols}
	case len(pkCols) == 1:
		m.PK = PK{Kind: PKIdentity, Columns: pkCols}
	default:
		m.PK = PK{Kind: PKComposite, Columns: pkCols}
	}

	if err := validateModel(m); err != nil {
		return nil, err
	}
	return m, nil
}

func validateModel(m *Model) error {
	seen := make(map[string]bool, len(m.Columns))
	for _, c := range m.Columns {
		if seen[c.Name] {
			return &stormerr.ConfigError{Type: m.Type.String(), Reason: fmt.Sprintf("duplicate column name %q", c.Name)}
		}
		seen[c.Name] = true
	}
	if m.PK.Kind == PKSequence && m.PK.SequenceName == "" {
		return &stormerr.ConfigError{Type: m.Type.String(), Reason: "SEQUENCE primary key declared without a sequence name"}
	}
	return nil
}
