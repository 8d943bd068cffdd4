package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a JSON-RPC 2.0 request id. Per the spec it is a string, a number, or
// absent (for notifications). ID is comparable and safe to use as a map key.
type ID struct {
	s     string
	n     int64
	isStr bool
	isSet bool
}

// StringID builds an ID from a string value.
func StringID(s string) ID { return ID{s: s, isStr: true, isSet: true} }

// NumberID builds an ID from an integer value.
func NumberID(n int64) ID { return ID{n: n, isSet: true} }

// IsZero reports whether the ID is the absent/zero value (no id present).
func (id ID) IsZero() bool { return !id.isSet }

// String renders the ID for logging and as a pending-map key component.
func (id ID) String() string {
	if !id.isSet {
		return ""
	}
	if id.isStr {
		return id.s
	}
	return strconv.FormatInt(id.n, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.isSet {
		return []byte("null"), nil
	}
	if id.isStr {
		return json.Marshal(id.s)
	}
	return json.Marshal(id.n)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*id = ID{s: t, isStr: true, isSet: true}
	case float64:
		*id = ID{n: int64(t), isSet: true}
	case nil:
		*id = ID{}
	default:
		return fmt.Errorf("jsonrpc: invalid id type %T", v)
	}
	return nil
}
