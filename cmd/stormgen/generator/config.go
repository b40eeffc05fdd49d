// Package generator implements cmd/stormgen's model discovery and source
// emission: load a package with type information, find every struct type
// carrying `db:"..."` tags, and emit a non-reflective model.RecordAccess
// implementation for each.
package generator

// Config mirrors the teacher's gen.Config convention (a `var _ =
// generator.Config{...}` declaration stormgen's caller drops into a
// `stormgen_config.go` file in the model directory) but trimmed to the
// options a RecordAccess generator actually needs: which structs to
// generate for, not how to lay out a whole generated package tree.
type Config struct {
	// IncludeStructs restricts generation to these type names. Empty means
	// every struct in the package carrying at least one `db:"..."` tag.
	IncludeStructs []string

	// ExcludeStructs skips these type names even if IncludeStructs would
	// otherwise select them.
	ExcludeStructs []string
}

// ConfigFileName is the convention filename ParseConfig looks for in a
// model directory, parallel to the teacher's gen.ConfigFileName.
const ConfigFileName = "stormgen_config.go"
