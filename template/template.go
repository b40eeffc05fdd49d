package template

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/storm-repo/storm-framework-sub012/stormerr"
)

// TemplateString is a sequence of literal text chunks interleaved with
// typed Elements: len(Chunks) == len(Elements)+1, and the rendered form is
// Chunks[0] + Elements[0] + Chunks[1] + Elements[1] + ... + Chunks[last].
type TemplateString struct {
	Chunks   []string
	Elements []Element
	Raw      string // original source text, for error messages and P4 idempotency checks
}

// TypeResolver resolves a bare identifier appearing in a TemplateString
// (e.g. "Pet") to the Go type registered under that name, the piece that
// spec.md §6 calls "a schema model derived from annotated record types":
// here, record types are registered once (model.Registry.RegisterNamed)
// under a name so bare template tokens can name them.
type TypeResolver interface {
	ResolveType(name string) (reflect.Type, bool)
}

var identTokenRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var lastKeywordRE = regexp.MustCompile(`(?i)\b(SELECT|FROM|INSERT\s+INTO|UPDATE|DELETE\s+FROM|WHERE|VALUES|SET|JOIN)\s*$`)

// Parse splits text on `{...}` placeholders and classifies each one using
// the single-pass contextual rule from spec.md §4.3: a bare type token's
// kind is inferred from the nearest preceding SQL keyword; if the token is
// immediately followed (in the next literal chunk) by '.', it denotes an
// alias reference instead of a table reference, and the "real" column name
// that follows the dot is left as ordinary literal text (it is not itself
// resolved — spec.md's Column/Metamodel element kind is reserved for
// programmatically supplied Metamodel values, see query.Column).
func Parse(text string, resolver TypeResolver) (*TemplateString, error) {
	ts := &TemplateString{Raw: text}
	var b strings.Builder
	i := 0
	for i < len(text) {
		c := text[i]
		if c == '{' {
			placeholderStart := i
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				return nil, &stormerr.TemplateError{Template: text, Reason: "unterminated '{' placeholder"}
			}
			token := strings.TrimSpace(text[i+1 : i+end])
			ts.Chunks = append(ts.Chunks, b.String())
			b.Reset()
			i += end + 1

			followedByDot := i < len(text) && text[i] == '.'
			elem, err := classify(token, text[:placeholderStart], followedByDot, resolver)
			if err != nil {
				return nil, err
			}
			ts.Elements = append(ts.Elements, elem)
			continue
		}
		b.WriteByte(c)
		i++
	}
	ts.Chunks = append(ts.Chunks, b.String())
	return ts, nil
}

// classify decides the Element kind for one placeholder token. precedingText
// is everything in the template up to (not including) the placeholder,
// used to find the nearest preceding SQL keyword.
func classify(token, precedingText string, followedByDot bool, resolver TypeResolver) (Element, error) {
	if lit, ok := parseLiteral(token); ok {
		return ParamElem{Value: lit}, nil
	}

	if !identTokenRE.MatchString(token) {
		return UnsafeElem{Raw: token}, nil
	}

	keyword := strings.ToUpper(strings.TrimSpace(lastKeywordRE.FindString(precedingText)))
	keyword = strings.Join(strings.Fields(keyword), " ")

	t, ok := resolver.ResolveType(token)
	if !ok {
		return nil, &stormerr.TemplateError{Template: token, Reason: "unknown type token " + token}
	}

	switch keyword {
	case "SELECT":
		return SelectElem{Type: t, Mode: SelectNested}, nil
	case "FROM":
		return FromElem{Type: t, AutoJoin: true}, nil
	case "INSERT INTO":
		return InsertElem{Type: t}, nil
	case "UPDATE":
		return UpdateElem{Type: t}, nil
	case "DELETE FROM":
		return DeleteElem{Type: t}, nil
	default:
		if followedByDot {
			return AliasElem{Type: t}, nil
		}
		return TableElem{Type: t}, nil
	}
}

func parseLiteral(token string) (any, bool) {
	if token == "" {
		return nil, false
	}
	if token == "nil" || token == "null" {
		return nil, true
	}
	if token == "true" {
		return true, true
	}
	if token == "false" {
		return false, true
	}
	if len(token) >= 2 && token[0] == '\'' && token[len(token)-1] == '\'' {
		return token[1 : len(token)-1], true
	}
	if n, err := strconv.ParseInt(token, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f, true
	}
	return nil, false
}
