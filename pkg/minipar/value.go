package minipar

import (
	"math"
	"strconv"
	"strings"
)

// Value represents any value in the MiniPar language. Values are
// immutable, which is what lets PAR branches copy scopes cheaply.
type Value interface {
	String() string
	// Type is the tag used by the semantic checker and zero values
	Type() string
	// Equals reports whether the given value is equal to the receiving
	// value without any coercion.
	Equals(Value) bool
}

// IntValue is the integer type of MiniPar
type IntValue int64

func (v IntValue) String() string {
	return strconv.FormatInt(int64(v), 10)
}

func (v IntValue) Type() string {
	return "int"
}

func (v IntValue) Equals(other Value) bool {
	ov, ok := other.(IntValue)
	return ok && v == ov
}

// FloatValue is the floating point number type of MiniPar
type FloatValue float64

func (v FloatValue) String() string {
	f := float64(v)
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (v FloatValue) Type() string {
	return "float"
}

func (v FloatValue) Equals(other Value) bool {
	ov, ok := other.(FloatValue)
	return ok && v == ov
}

type StringValue string

func (v StringValue) String() string {
	return string(v)
}

func (v StringValue) Type() string {
	return "string"
}

func (v StringValue) Equals(other Value) bool {
	ov, ok := other.(StringValue)
	return ok && v == ov
}

// BoolValue is either `true` or `false`
type BoolValue bool

func (v BoolValue) String() string {
	if v {
		return "true"
	}
	return "false"
}

func (v BoolValue) Type() string {
	return "bool"
}

func (v BoolValue) Equals(other Value) bool {
	ov, ok := other.(BoolValue)
	return ok && v == ov
}

// NullValue is the result of functions that return nothing and the
// value of untyped parameters that were not passed.
type NullValue struct{}

var Null = NullValue{}

func (v NullValue) String() string {
	return "null"
}

func (v NullValue) Type() string {
	return "null"
}

func (v NullValue) Equals(other Value) bool {
	_, ok := other.(NullValue)
	return ok
}

// zeroValue is the initial value of a declared but unassigned variable.
func zeroValue(typeName string) Value {
	switch typeName {
	case "int":
		return IntValue(0)
	case "float":
		return FloatValue(0)
	case "string":
		return StringValue("")
	case "bool":
		return BoolValue(false)
	default:
		return Null
	}
}

// parseNumber reads a string as an int, then as a float. The whole
// string must be a number.
func parseNumber(s string) (Value, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntValue(i), true
	}
	// "inf" and "nan" parse as floats but are not numbers in MiniPar
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return FloatValue(f), true
	}
	return nil, false
}

// toNumeric applies the arithmetic coercion table: numeric strings become
// numbers, booleans become 0/1 and null becomes 0. The result is always an
// IntValue or FloatValue when ok.
func toNumeric(v Value) (Value, bool) {
	switch n := v.(type) {
	case IntValue, FloatValue:
		return n, true
	case BoolValue:
		if n {
			return IntValue(1), true
		}
		return IntValue(0), true
	case NullValue:
		return IntValue(0), true
	case StringValue:
		return parseNumber(string(n))
	default:
		return nil, false
	}
}

func asFloat(v Value) float64 {
	switch n := v.(type) {
	case IntValue:
		return float64(n)
	case FloatValue:
		return float64(n)
	default:
		return 0
	}
}

// demote turns an integral float into an int, used for the result of `/`.
func demote(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return IntValue(int64(f))
	}
	return FloatValue(f)
}

// truthy decides the outcome of conditions and logical operators.
func truthy(v Value) bool {
	switch b := v.(type) {
	case BoolValue:
		return bool(b)
	case IntValue:
		return b != 0
	case FloatValue:
		return b != 0
	case StringValue:
		return b != ""
	default:
		return false
	}
}

// sniffInput types a line of console input the way input() does.
func sniffInput(line string) Value {
	line = strings.TrimRight(line, "\r\n")
	if v, ok := parseNumber(strings.TrimSpace(line)); ok {
		return v
	}
	return StringValue(line)
}
