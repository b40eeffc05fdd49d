// Command stormgen is Storm's companion offline codegen step: given a
// directory of model structs tagged `db:"..."`, it emits a non-reflective
// model.RecordAccess implementation per struct, the compile-time path
// model.TypedWithAccess takes in place of the default reflection-backed
// adaptor.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/storm-repo/storm-framework-sub012/cmd/stormgen/generator"
)

func main() {
	dir := flag.String("dir", ".", "directory containing model structs")
	suffix := flag.String("suffix", "_stormgen.go", "filename suffix for generated files")
	flag.Parse()

	cfg, err := generator.ParseConfig(*dir)
	if err != nil {
		log.Fatalf("stormgen: %v", err)
	}

	models, err := generator.Load(*dir, cfg)
	if err != nil {
		log.Fatalf("stormgen: %v", err)
	}
	if len(models) == 0 {
		fmt.Println("stormgen: no db-tagged structs found, nothing to generate")
		return
	}

	for _, mm := range models {
		src, err := generator.Emit(mm)
		if err != nil {
			log.Fatalf("stormgen: %v", err)
		}
		outPath := filepath.Join(*dir, snakeCase(mm.TypeName)+*suffix)
		if err := os.WriteFile(outPath, src, 0o644); err != nil {
			log.Fatalf("stormgen: writing %s: %v", outPath, err)
		}
		fmt.Printf("stormgen: wrote %s (%s)\n", outPath, mm.TypeName)
	}
}

func snakeCase(s string) string {
	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c = c - 'A' + 'a'
		}
		out = append(out, c)
	}
	return string(out)
}
