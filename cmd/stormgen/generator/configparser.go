package generator

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseConfig reads ConfigFileName in dir for a
// `var _ = generator.Config{...}` declaration, the same convention the
// teacher's gen.Config used under the name config.go. A missing file is not
// an error: Load then runs with the zero Config (generate everything).
func ParseConfig(dir string) (Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return Config{}, nil
	}

	var cfg Config
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.VAR {
			continue
		}
		for _, spec := range genDecl.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok || len(vs.Values) == 0 {
				continue
			}
			lit, ok := vs.Values[0].(*ast.CompositeLit)
			if !ok {
				continue
			}
			for _, elt := range lit.Elts {
				kv, ok := elt.(*ast.KeyValueExpr)
				if !ok {
					continue
				}
				key, ok := kv.Key.(*ast.Ident)
				if !ok {
					continue
				}
				switch key.Name {
				case "IncludeStructs":
					cfg.IncludeStructs = stringSlice(kv.Value)
				case "ExcludeStructs":
					cfg.ExcludeStructs = stringSlice(kv.Value)
				}
			}
		}
	}
	return cfg, nil
}

func stringSlice(expr ast.Expr) []string {
	lit, ok := expr.(*ast.CompositeLit)
	if !ok {
		return nil
	}
	var out []string
	for _, elt := range lit.Elts {
		bl, ok := elt.(*ast.BasicLit)
		if !ok || bl.Kind != token.STRING {
			continue
		}
		if v, err := strconv.Unquote(bl.Value); err == nil {
			out = append(out, v)
		} else {
			out = append(out, strings.Trim(bl.Value, `"`))
		}
	}
	return out
}
