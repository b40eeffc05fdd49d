// Package converter provides the built-in Converters named in Model.converters:
// JSON (grounded on the teacher's json_type.go sql.Scanner/driver.Valuer
// wrapper), msgpack (for compact blob columns), and decimal (for exact
// money/numeric columns that must not round-trip through float64).
package converter

import "encoding/json"

// JSON converts a Go value to and from a JSON-encoded database column,
// generalizing the teacher's json_type.go JSONType[T] wrapper into a
// reusable model.Converter instance rather than a generic scan wrapper type.
type JSON struct{}

func (JSON) ToDatabase(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (JSON) FromDatabase(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var raw []byte
	switch t := v.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		return v, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
