package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is a scalar service value: a string, an integer or a boolean.
// Floats, objects and arrays are rejected while decoding.
type Value struct {
	v any
}

// ProgramValue is a scalar program option value: a string or an integer.
type ProgramValue struct {
	Value
}

// ValueOf wraps a Go value. Integers are normalised to int64.
func ValueOf(x any) Value {
	switch n := x.(type) {
	case int:
		return Value{v: int64(n)}
	case int32:
		return Value{v: int64(n)}
	}
	return Value{v: x}
}

// Interface returns the decoded value: string, int64 or bool.
func (v Value) Interface() any {
	return v.v
}

func (v Value) String() string {
	return fmt.Sprint(v.v)
}

// MarshalJSON encodes the underlying scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.v)
}

// UnmarshalJSON accepts a JSON string, integer or boolean.
func (v *Value) UnmarshalJSON(b []byte) error {
	x, err := decodeScalar(b, true)
	if err != nil {
		return err
	}
	v.v = x
	return nil
}

// UnmarshalJSON accepts a JSON string or integer.
func (p *ProgramValue) UnmarshalJSON(b []byte) error {
	x, err := decodeScalar(b, false)
	if err != nil {
		return err
	}
	p.v = x
	return nil
}

func decodeScalar(b []byte, allowBool bool) (any, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("empty value")
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, err
		}
		return s, nil
	case 't', 'f':
		if !allowBool {
			return nil, fmt.Errorf("value must be an integer or string, got %s", b)
		}
		var flag bool
		if err := json.Unmarshal(b, &flag); err != nil {
			return nil, err
		}
		return flag, nil
	case '{', '[':
		return nil, fmt.Errorf("value must be a scalar, got %s", b)
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, err
	}
	i, err := n.Int64()
	if err != nil {
		return nil, fmt.Errorf("value must be an integer, got %s", n)
	}
	return i, nil
}
