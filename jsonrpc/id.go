package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ID represents a JSON-RPC ID which must be either a string or number.
// The zero value is the null ID.
type ID struct {
	value interface{}
}

// NewID creates a JSON-RPC ID from a string or number
func NewID(id interface{}) (ID, error) {
	switch v := id.(type) {
	case ID:
		return v, nil
	case *ID:
		if v == nil {
			return ID{}, nil
		}
		return *v, nil
	case string:
		return ID{value: v}, nil
	case int:
		return ID{value: int64(v)}, nil
	case int32:
		return ID{value: int64(v)}, nil
	case int64:
		return ID{value: v}, nil
	case float64:
		if v != math.Trunc(v) {
			return ID{}, fmt.Errorf("id must be an integer, got %g", v)
		}
		return ID{value: int64(v)}, nil
	case nil:
		return ID{}, nil
	default:
		return ID{}, fmt.Errorf("id must be string or number, got %T", id)
	}
}

// Int64ID returns a numeric ID.
func Int64ID(n int64) ID {
	return ID{value: n}
}

func (id ID) Value() interface{} {
	return id.value
}

func (id ID) IsNil() bool {
	return id.value == nil
}

// Int64 returns the numeric value of the ID, if it is a number.
func (id ID) Int64() (int64, bool) {
	n, ok := id.value.(int64)
	return n, ok
}

// Equal compares two IDs for equality
func (id ID) Equal(other interface{}) bool {
	o, err := NewID(other)
	if err != nil {
		return false
	}
	return id.value == o.value
}

var _ fmt.GoStringer = ID{}

// GoString implements fmt.GoStringer
func (id ID) GoString() string {
	switch v := id.value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%v", v)
	}
}

var _ json.Marshaler = ID{}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

var _ json.Unmarshaler = &ID{}

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		id.value = nil
		return nil
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	v, err := NewID(raw)
	if err != nil {
		return err
	}
	*id = v
	return nil
}
