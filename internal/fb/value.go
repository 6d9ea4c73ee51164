package fb

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType is the data type of a port or internal variable.
type ValueType uint8

const (
	Bool ValueType = iota + 1
	UInt
	String
)

func (t ValueType) String() string {
	switch t {
	case Bool:
		return "BOOL"
	case UInt:
		return "ULINT"
	case String:
		return "STRING"
	default:
		return "ANY"
	}
}

// Value is a typed port value. The zero value of each type is FALSE, 0
// and the empty string.
type Value struct {
	typ ValueType
	b   bool
	u   uint64
	s   string
}

func BoolValue(v bool) Value     { return Value{typ: Bool, b: v} }
func UIntValue(v uint64) Value   { return Value{typ: UInt, u: v} }
func StringValue(v string) Value { return Value{typ: String, s: v} }

// Zero returns the zero value of t.
func Zero(t ValueType) Value { return Value{typ: t} }

// ParseValue parses the trace form of a value of type t.
func ParseValue(t ValueType, s string) (Value, error) {
	switch t {
	case Bool:
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "TRUE", "1":
			return BoolValue(true), nil
		case "FALSE", "0":
			return BoolValue(false), nil
		}
		return Value{}, fmt.Errorf("invalid BOOL %q", s)
	case UInt:
		u, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid ULINT %q: %w", s, err)
		}
		return UIntValue(u), nil
	case String:
		return StringValue(s), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %d", t)
	}
}

func (v Value) Type() ValueType { return v.typ }
func (v Value) Bool() bool      { return v.b }
func (v Value) UInt() uint64    { return v.u }
func (v Value) Str() string     { return v.s }

// String returns the trace form: TRUE/FALSE, decimal, or the raw string.
func (v Value) String() string {
	switch v.typ {
	case Bool:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	case UInt:
		return strconv.FormatUint(v.u, 10)
	default:
		return v.s
	}
}
