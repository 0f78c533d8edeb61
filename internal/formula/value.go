package formula

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a sealed interface over literal values.
// Only Null, String, Integer, Float and Boolean implement it.
type Value interface {
	value()
}

// Null is the SQL NULL literal.
type Null struct{}

func (Null) value() {}

// String is a string literal.
type String string

func (String) value() {}

// Integer is an integer literal.
type Integer int64

func (Integer) value() {}

// Float is a floating point literal.
type Float float64

func (Float) value() {}

// Boolean is a boolean literal.
type Boolean bool

func (Boolean) value() {}

// TypeName returns the concrete literal type name used in encodings.
func TypeName(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case String:
		return "string"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// SameType reports whether a and b are literals of the same concrete type.
func SameType(a, b Value) bool {
	return TypeName(a) == TypeName(b)
}

// Native converts v to the Go value drivers and row streams use.
// Null becomes nil.
func Native(v Value) any {
	switch val := v.(type) {
	case Null:
		return nil
	case String:
		return string(val)
	case Integer:
		return int64(val)
	case Float:
		return float64(val)
	case Boolean:
		return bool(val)
	default:
		return nil
	}
}

// FromNative converts a Go scalar to a Value.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Boolean(val), nil
	case int:
		return Integer(val), nil
	case int32:
		return Integer(val), nil
	case int64:
		return Integer(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer literal %d overflows int64", val)
		}
		return Integer(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	default:
		return nil, fmt.Errorf("unsupported literal type %T", v)
	}
}

// FormatValue renders v for explain output.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case Null:
		return "NULL"
	case String:
		return strconv.Quote(string(val))
	case Integer:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Boolean:
		if val {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "?"
	}
}
