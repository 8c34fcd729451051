package pv

import (
	"fmt"
	"math"
	"strconv"
)

// ValueType declares the kind of value a process variable carries.
//
// The type decides both the coercion applied to values read from the transport
// and the wire representation used for writes. The canonical Go representations
// are float64 (FloatType), int64 (IntType and EnumType) and string (StringType).
type ValueType uint8

const (
	// FloatType is a floating-point PV, canonically a float64.
	FloatType ValueType = iota
	// IntType is an integer PV, canonically an int64.
	IntType
	// StringType is a character or character-array PV, canonically a string.
	StringType
	// EnumType is an integer PV whose values name discrete device states,
	// e.g. shutter open/closed or detector idle/acquire. It coerces like
	// IntType and exists to make binding tables self-describing.
	EnumType
)

// String returns the string representation of the value type.
func (t ValueType) String() string {
	switch t {
	case FloatType:
		return "float"
	case IntType:
		return "int"
	case StringType:
		return "string"
	case EnumType:
		return "enum"
	default:
		return "unknown"
	}
}

// Coerce converts raw to the canonical representation of value type t.
//
// It accepts the common scalar kinds a control-system client may hand back
// (Go numeric types, strings, byte slices) and fails with ErrCoercion for
// anything else. Integer coercions never truncate: a float with a fractional
// part does not coerce to an IntType or EnumType PV.
func Coerce(t ValueType, raw any) (any, error) {
	switch t {
	case FloatType:
		return toFloat(raw)
	case IntType, EnumType:
		return toInt(raw)
	case StringType:
		return toString(raw)
	default:
		return nil, fmt.Errorf("%w: unknown value type %d", ErrCoercion, t)
	}
}

// Equal reports whether a and b represent the same value under value type t.
// Both operands are coerced before comparison, so Equal(IntType, 2, int64(2))
// and Equal(FloatType, 2, 2.0) are true.
func Equal(t ValueType, a, b any) (bool, error) {
	ca, err := Coerce(t, a)
	if err != nil {
		return false, err
	}
	cb, err := Coerce(t, b)
	if err != nil {
		return false, err
	}
	return ca == cb, nil
}

func toFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", ErrCoercion, v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: cannot convert %T to float", ErrCoercion, raw)
	}
}

func toInt(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrCoercion, v)
		}
		return int64(v), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an int", ErrCoercion, v)
		}
		return i, nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("%w: cannot convert %T to int", ErrCoercion, raw)
	}
}

func floatToInt(f float64) (any, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("%w: %v has no exact int representation", ErrCoercion, f)
	}
	return int64(f), nil
}

func toString(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("%w: cannot convert %T to string", ErrCoercion, raw)
	}
}
