package converter

import "github.com/vmihailenco/msgpack/v5"

// MsgPack converts a Go value to and from a compact binary column using
// msgpack, for columns where a human-readable JSON encoding is wasteful.
type MsgPack struct{}

func (MsgPack) ToDatabase(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return msgpack.Marshal(v)
}

func (MsgPack) FromDatabase(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]byte)
	if !ok {
		return v, nil
	}
	var out any
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
